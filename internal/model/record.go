package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fachebot/ai-news-digest/internal/content"
)

var recordColumns = []string{"cid", "type", "source", "title", "text", "link", "topics", "metadata", "timestamp"}

// 单条 INSERT 的记录数，避免超过 SQLite 变量上限
const insertBatchSize = 100

type RecordModel struct {
	db *sql.DB
}

func NewRecordModel(db *sql.DB) *RecordModel {
	return &RecordModel{db: db}
}

// Create 批量写入内容记录，cid 已存在时覆盖
func (m *RecordModel) Create(ctx context.Context, records []content.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))

		insert := sq.Insert("records").Columns(recordColumns...)
		for _, r := range records[start:end] {
			if r.ID == "" {
				return written, fmt.Errorf("内容记录缺少 cid (type=%s)", r.Type)
			}
			topics, err := json.Marshal(nonNilTopics(r.Topics))
			if err != nil {
				return written, fmt.Errorf("序列化话题失败: %w", err)
			}
			metadata, err := json.Marshal(nonNilMetadata(r.Metadata))
			if err != nil {
				return written, fmt.Errorf("序列化元数据失败 (cid=%s): %w", r.ID, err)
			}
			insert = insert.Values(r.ID, r.Type, r.Source, r.Title, r.Text, r.Link, string(topics), string(metadata), r.Timestamp)
		}
		insert = insert.Suffix(`ON CONFLICT (cid) DO UPDATE SET
			type = excluded.type,
			source = excluded.source,
			title = excluded.title,
			text = excluded.text,
			link = excluded.link,
			topics = excluded.topics,
			metadata = excluded.metadata,
			timestamp = excluded.timestamp`)

		if _, err := exec(ctx, tx, insert); err != nil {
			return written, fmt.Errorf("写入内容记录失败: %w", err)
		}
		written += end - start
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return written, nil
}

// Fetch 查询 [start, end) 内的记录，typeFilter 为空表示全部类型，按时间升序
func (m *RecordModel) Fetch(ctx context.Context, start, end time.Time, typeFilter []string) ([]content.Record, error) {
	builder := sq.Select(recordColumns...).
		From("records").
		Where(sq.GtOrEq{"timestamp": start.Unix()}).
		Where(sq.Lt{"timestamp": end.Unix()}).
		OrderBy("timestamp ASC", "cid ASC")
	if len(typeFilter) > 0 {
		builder = builder.Where(sq.Eq{"type": typeFilter})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询内容记录失败: %w", err)
	}
	defer rows.Close()

	var out []content.Record
	for rows.Next() {
		var (
			r                content.Record
			topics, metadata string
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Source, &r.Title, &r.Text, &r.Link, &topics, &metadata, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("读取内容记录失败: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
			return nil, fmt.Errorf("解析话题失败 (cid=%s): %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("解析元数据失败 (cid=%s): %w", r.ID, err)
		}
		if len(r.Topics) == 0 {
			r.Topics = nil
		}
		if len(r.Metadata) == 0 {
			r.Metadata = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBefore 删除指定时间之前的记录
func (m *RecordModel) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := exec(ctx, m.db, sq.Delete("records").Where(sq.Lt{"timestamp": cutoff.Unix()}))
	if err != nil {
		return 0, fmt.Errorf("清理内容记录失败: %w", err)
	}
	return result.RowsAffected()
}

func nonNilTopics(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}

func nonNilMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
