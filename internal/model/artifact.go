package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fachebot/ai-news-digest/internal/artifact"
)

const dateLayout = "2006-01-02"

var artifactColumns = []string{"type", "date", "granularity", "fingerprint", "markdown", "json", "updated_at"}

type ArtifactModel struct {
	db *sql.DB
}

func NewArtifactModel(db *sql.DB) *ArtifactModel {
	return &ArtifactModel{db: db}
}

func scanArtifact(row interface{ Scan(...any) error }) (*artifact.Stored, error) {
	var (
		s           artifact.Stored
		granularity string
		updatedAt   int64
	)
	if err := row.Scan(&s.Type, &s.Date, &granularity, &s.Fingerprint, &s.Markdown, &s.JSON, &updatedAt); err != nil {
		return nil, err
	}
	s.Granularity = artifact.Granularity(granularity)
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// GetArtifact 按 (type, date, granularity) 查询报告，不存在时返回 nil, nil
func (m *ArtifactModel) GetArtifact(ctx context.Context, typ, date string, granularity artifact.Granularity) (*artifact.Stored, error) {
	query, args, err := sq.Select(artifactColumns...).
		From("artifacts").
		Where(sq.Eq{"type": typ, "date": date, "granularity": string(granularity)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	stored, err := scanArtifact(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询报告失败: %w", err)
	}
	return stored, nil
}

// ListDailyArtifacts 查询 [start, end] 日期区间（含两端）内的每日报告，按日期升序
func (m *ArtifactModel) ListDailyArtifacts(ctx context.Context, typ string, start, end time.Time) ([]*artifact.Stored, error) {
	query, args, err := sq.Select(artifactColumns...).
		From("artifacts").
		Where(sq.Eq{"type": typ, "granularity": string(artifact.GranularityDaily)}).
		Where(sq.GtOrEq{"date": start.UTC().Format(dateLayout)}).
		Where(sq.LtOrEq{"date": end.UTC().Format(dateLayout)}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询每日报告失败: %w", err)
	}
	defer rows.Close()

	var out []*artifact.Stored
	for rows.Next() {
		stored, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("读取每日报告失败: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// Save 保存报告，同一 (type, date, granularity) 已存在则覆盖
func (m *ArtifactModel) Save(ctx context.Context, stored *artifact.Stored) error {
	updatedAt := stored.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := exec(ctx, m.db, sq.Insert("artifacts").
		Columns(artifactColumns...).
		Values(stored.Type, stored.Date, string(stored.Granularity), stored.Fingerprint, stored.Markdown, stored.JSON, updatedAt.Unix()).
		Suffix(`ON CONFLICT (type, date, granularity) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			markdown = excluded.markdown,
			json = excluded.json,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("保存报告失败: %w", err)
	}
	return nil
}

// SaveReport 序列化并保存报告
func (m *ArtifactModel) SaveReport(ctx context.Context, report *artifact.Report) (*artifact.Stored, error) {
	stored, err := report.ToStored()
	if err != nil {
		return nil, err
	}
	stored.UpdatedAt = time.Now().UTC()
	if err := m.Save(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}
