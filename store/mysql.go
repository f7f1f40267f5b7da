package store

import (
	"database/sql"
	"fmt"
	"time"

	"flaky-eval/logger"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig holds connection settings for the MySQL store.
type MySQLConfig struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// MySQLStore implements Store using MySQL.
type MySQLStore struct {
	sqlStore
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS eval_runs (
    id VARCHAR(64) PRIMARY KEY,
    provider VARCHAR(32) NOT NULL DEFAULT '',
    model VARCHAR(128) NOT NULL,
    input_dir VARCHAR(1024) NOT NULL DEFAULT '',
    include_patch TINYINT(1) NOT NULL DEFAULT 1,
    status VARCHAR(32) NOT NULL DEFAULT 'running',
    total INT NOT NULL DEFAULT 0,
    correct INT NOT NULL DEFAULT 0,
    started_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    finished_at DATETIME(3) NULL,
    INDEX idx_runs_model (model)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS eval_results (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    run_id VARCHAR(64) NOT NULL,
    example_id VARCHAR(255) NOT NULL,
    ground_truth VARCHAR(128) NOT NULL,
    predicted TEXT NOT NULL,
    is_match TINYINT(1) NOT NULL DEFAULT 0,
    prompt LONGTEXT NOT NULL,
    created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    INDEX idx_results_run (run_id),
    CONSTRAINT fk_results_run FOREIGN KEY (run_id) REFERENCES eval_runs(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// NewMySQLStore opens a MySQL database and initializes the schema.
// parseTime is forced on so DATETIME columns scan into time.Time.
func NewMySQLStore(cfg MySQLConfig, log logger.Logger) (*MySQLStore, error) {
	dsn, err := mysqlDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := pingAndInit(db, mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: %w", err)
	}

	log.Info("store.mysql.opened")
	return &MySQLStore{sqlStore{db: db, log: log}}, nil
}

func mysqlDSN(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("mysql dsn is empty")
	}
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}
