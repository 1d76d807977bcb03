package model

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		cid TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		topics TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		timestamp INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_records_type_timestamp ON records (type, timestamp)`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		type TEXT NOT NULL,
		date TEXT NOT NULL,
		granularity TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		markdown TEXT NOT NULL DEFAULT '',
		json BLOB,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (type, date, granularity)
	)`,

	// 唯一索引防止同一区间重复创建运行记录
	`CREATE TABLE IF NOT EXISTS daily_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		error_message TEXT NOT NULL DEFAULT '',
		create_time INTEGER NOT NULL,
		update_time INTEGER NOT NULL,
		UNIQUE (kind, start_date, end_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_runs_status ON daily_runs (status)`,
}

// Open 打开 SQLite 数据库并创建表结构
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite 只允许一个写连接
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("创建数据库Schema失败: %w", err)
		}
	}
	return db, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exec(ctx context.Context, db execer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("构建 SQL 失败: %w", err)
	}
	return db.ExecContext(ctx, query, args...)
}
