package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RunStatus 运行状态：pending=待执行, in_progress=执行中, completed=已完成, failed=失败
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// DailyRun 一次报告生成的运行记录，用于崩溃恢复
type DailyRun struct {
	ID           int64
	Kind         string
	StartDate    string
	EndDate      string
	Status       RunStatus
	ErrorMessage string
	CreateTime   time.Time
	UpdateTime   time.Time
}

var dailyRunColumns = []string{"id", "kind", "start_date", "end_date", "status", "error_message", "create_time", "update_time"}

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

type DailyRunModel struct {
	db  *sql.DB
	now func() time.Time
}

func NewDailyRunModel(db *sql.DB) *DailyRunModel {
	return &DailyRunModel{db: db, now: time.Now}
}

func scanDailyRun(row interface{ Scan(...any) error }) (*DailyRun, error) {
	var (
		run                    DailyRun
		status                 string
		createTime, updateTime int64
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.StartDate, &run.EndDate, &status, &run.ErrorMessage, &createTime, &updateTime); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.CreateTime = time.Unix(createTime, 0).UTC()
	run.UpdateTime = time.Unix(updateTime, 0).UTC()
	return &run, nil
}

// Create 创建运行记录
func (m *DailyRunModel) Create(ctx context.Context, kind, startDate, endDate string, status RunStatus) (*DailyRun, error) {
	now := m.now().Unix()
	result, err := exec(ctx, m.db, sq.Insert("daily_runs").
		Columns("kind", "start_date", "end_date", "status", "error_message", "create_time", "update_time").
		Values(kind, startDate, endDate, string(status), "", now, now))
	if err != nil {
		return nil, fmt.Errorf("创建运行记录失败: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &DailyRun{
		ID:         id,
		Kind:       kind,
		StartDate:  startDate,
		EndDate:    endDate,
		Status:     status,
		CreateTime: time.Unix(now, 0).UTC(),
		UpdateTime: time.Unix(now, 0).UTC(),
	}, nil
}

// GetByDateRange 查询指定区间的运行记录，不存在时返回 ErrNotFound
func (m *DailyRunModel) GetByDateRange(ctx context.Context, kind, startDate, endDate string) (*DailyRun, error) {
	query, args, err := sq.Select(dailyRunColumns...).
		From("daily_runs").
		Where(sq.Eq{"kind": kind, "start_date": startDate, "end_date": endDate}).
		ToSql()
	if err != nil {
		return nil, err
	}
	run, err := scanDailyRun(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// GetOrCreate 获取或创建运行记录，已存在相同区间的记录时返回现有记录
func (m *DailyRunModel) GetOrCreate(ctx context.Context, kind, startDate, endDate string, status RunStatus) (*DailyRun, error) {
	existing, err := m.GetByDateRange(ctx, kind, startDate, endDate)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return m.Create(ctx, kind, startDate, endDate, status)
}

// GetIncompleteRuns 查询所有未完成的运行记录（pending 或 in_progress），按创建时间排序
func (m *DailyRunModel) GetIncompleteRuns(ctx context.Context) ([]*DailyRun, error) {
	query, args, err := sq.Select(dailyRunColumns...).
		From("daily_runs").
		Where(sq.Eq{"status": []string{string(StatusPending), string(StatusInProgress)}}).
		OrderBy("create_time ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询未完成运行记录失败: %w", err)
	}
	defer rows.Close()

	var out []*DailyRun
	for rows.Next() {
		run, err := scanDailyRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// MarkInProgress 标记运行记录执行中，并清除上次的错误信息
func (m *DailyRunModel) MarkInProgress(ctx context.Context, id int64) error {
	return m.setStatus(ctx, id, StatusInProgress, "")
}

// MarkCompleted 标记运行记录完成
func (m *DailyRunModel) MarkCompleted(ctx context.Context, id int64) error {
	return m.setStatus(ctx, id, StatusCompleted, "")
}

// MarkFailed 标记运行记录失败
func (m *DailyRunModel) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	return m.setStatus(ctx, id, StatusFailed, errorMsg)
}

func (m *DailyRunModel) setStatus(ctx context.Context, id int64, status RunStatus, errorMsg string) error {
	result, err := exec(ctx, m.db, sq.Update("daily_runs").
		Set("status", string(status)).
		Set("error_message", errorMsg).
		Set("update_time", m.now().Unix()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("更新运行记录失败: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
