package store

import (
	"database/sql"
	"fmt"

	"flaky-eval/logger"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	sqlStore
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS eval_runs (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL,
    input_dir TEXT NOT NULL DEFAULT '',
    include_patch BOOLEAN NOT NULL DEFAULT 1,
    status TEXT NOT NULL DEFAULT 'running',
    total INTEGER NOT NULL DEFAULT 0,
    correct INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_model ON eval_runs(model)`,
	`CREATE TABLE IF NOT EXISTS eval_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES eval_runs(id),
    example_id TEXT NOT NULL,
    ground_truth TEXT NOT NULL,
    predicted TEXT NOT NULL,
    is_match BOOLEAN NOT NULL DEFAULT 0,
    prompt TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS idx_results_run ON eval_results(run_id)`,
}

// NewSQLiteStore opens a SQLite database and initializes the schema.
func NewSQLiteStore(dbPath string, log logger.Logger) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := pingAndInit(db, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	log.Info("store.sqlite.opened", logger.String("path", dbPath))
	return &SQLiteStore{sqlStore{db: db, log: log}}, nil
}
