package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"flaky-eval/logger"
)

// sqlStore holds the queries shared by the SQLite and MySQL backends; both
// drivers accept '?' placeholders.
type sqlStore struct {
	db  *sql.DB
	log logger.Logger
}

const runColumns = "id, provider, model, input_dir, include_patch, status, total, correct, started_at, finished_at"

const resultColumns = "run_id, example_id, ground_truth, predicted, is_match, prompt, created_at"

func (s *sqlStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO eval_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, run.Model, run.InputDir, run.IncludePatch, string(run.Status),
		run.Total, run.Correct, run.StartedAt, nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *sqlStore) FinishRun(ctx context.Context, run *Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE eval_runs SET status=?, total=?, correct=?, finished_at=? WHERE id=?`,
		string(run.Status), run.Total, run.Correct, nullTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *sqlStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	filter = normalizeFilter(filter)
	query := `SELECT ` + runColumns + ` FROM eval_runs`
	var conditions []string
	var args []any

	if filter.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, filter.Model)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d OFFSET %d", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *sqlStore) SaveResult(ctx context.Context, r *Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO eval_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ExampleID, r.GroundTruth, r.Predicted, r.Match, r.Prompt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *sqlStore) ListResults(ctx context.Context, runID string) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM eval_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.RunID, &r.ExampleID, &r.GroundTruth, &r.Predicted, &r.Match, &r.Prompt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.Provider, &run.Model, &run.InputDir, &run.IncludePatch,
		&status, &run.Total, &run.Correct, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func pingAndInit(db *sql.DB, stmts []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
