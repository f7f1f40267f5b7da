// Package store persists evaluation runs and their per-example results so
// runs against different models can be compared later.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flaky-eval/logger"
)

// RunStatus represents the lifecycle state of an evaluation run.
type RunStatus string

const (
	StatusRunning     RunStatus = "running"
	StatusCompleted   RunStatus = "completed"
	StatusInterrupted RunStatus = "interrupted"
	StatusFailed      RunStatus = "failed"
)

// Run is one pass of the evaluator over an input directory.
type Run struct {
	ID           string     `json:"id"`
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	InputDir     string     `json:"input_dir"`
	IncludePatch bool       `json:"include_patch"`
	Status       RunStatus  `json:"status"`
	Total        int        `json:"total"`
	Correct      int        `json:"correct"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
}

// Result is one scored example within a run.
type Result struct {
	RunID       string    `json:"run_id"`
	ExampleID   string    `json:"example_id"`
	GroundTruth string    `json:"ground_truth"`
	Predicted   string    `json:"predicted"`
	Match       bool      `json:"match"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Model  string    `json:"model"`
	Status RunStatus `json:"status"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// Store defines the persistence interface for runs and results.
// Get methods return (nil, nil) when the record does not exist.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	SaveResult(ctx context.Context, result *Result) error
	ListResults(ctx context.Context, runID string) ([]*Result, error)

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type          string // none, json, sqlite, mysql
	JSONPath      string
	FlushInterval time.Duration
	SQLitePath    string
	MySQL         MySQLConfig
}

// Open creates the backend named by cfg.Type. It returns a nil Store for
// "none" or an empty type.
func Open(cfg Config, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "json":
		if err := ensureDir(cfg.JSONPath); err != nil {
			return nil, err
		}
		return NewJSONStore(cfg.JSONPath, cfg.FlushInterval, log)
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return NewSQLiteStore(cfg.SQLitePath, log)
	case "mysql":
		return NewMySQLStore(cfg.MySQL, log)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	return nil
}

func normalizeFilter(f RunFilter) RunFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
