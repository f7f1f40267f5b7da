package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"flaky-eval/logger"
)

// JSONStore implements Store using an in-memory map backed by a JSON file.
type JSONStore struct {
	path          string
	mu            sync.RWMutex
	data          jsonData
	log           logger.Logger
	flushInterval time.Duration
	stopFlush     chan struct{}
	closeOnce     sync.Once
}

type jsonData struct {
	Runs    map[string]*Run      `json:"runs"`
	Results map[string][]*Result `json:"results"`
}

// NewJSONStore creates a JSONStore, loading the file at path if it exists.
// A background goroutine flushes to disk at flushInterval; a non-positive
// interval flushes only on FinishRun and Close.
func NewJSONStore(path string, flushInterval time.Duration, log logger.Logger) (*JSONStore, error) {
	s := &JSONStore{
		path:          path,
		log:           log,
		flushInterval: flushInterval,
		stopFlush:     make(chan struct{}),
		data: jsonData{
			Runs:    make(map[string]*Run),
			Results: make(map[string][]*Result),
		},
	}

	if err := s.loadFromFile(); err != nil {
		return nil, err
	}

	if flushInterval > 0 {
		go s.flushLoop()
	}

	log.Info("store.json.opened", logger.String("path", path))
	return s, nil
}

func (s *JSONStore) loadFromFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read json store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var d jsonData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("unmarshal json store: %w", err)
	}
	if d.Runs == nil {
		d.Runs = make(map[string]*Run)
	}
	if d.Results == nil {
		d.Results = make(map[string][]*Result)
	}
	s.data = d
	return nil
}

func (s *JSONStore) flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal json store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write json store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace json store: %w", err)
	}
	return nil
}

func (s *JSONStore) flushLoop() {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.log.Error("store.json.flush_failed", logger.Err(err))
			}
		case <-s.stopFlush:
			return
		}
	}
}

// ---------- Run ----------

func (s *JSONStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.Runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.data.Runs[run.ID] = cloneRun(run)
	return nil
}

func (s *JSONStore) FinishRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	existing, ok := s.data.Runs[run.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("run %s not found", run.ID)
	}
	existing.Status = run.Status
	existing.Total = run.Total
	existing.Correct = run.Correct
	existing.FinishedAt = cloneTime(run.FinishedAt)
	s.mu.Unlock()

	return s.flush()
}

func (s *JSONStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.data.Runs[id]
	if !ok {
		return nil, nil
	}
	return cloneRun(run), nil
}

func (s *JSONStore) ListRuns(_ context.Context, filter RunFilter) ([]*Run, error) {
	filter = normalizeFilter(filter)
	s.mu.RLock()
	var runs []*Run
	for _, run := range s.data.Runs {
		if filter.Model != "" && run.Model != filter.Model {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if filter.Offset >= len(runs) {
		return nil, nil
	}
	runs = runs[filter.Offset:]
	if len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// ---------- Result ----------

func (s *JSONStore) SaveResult(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Runs[r.RunID]; !ok {
		return fmt.Errorf("run %s not found", r.RunID)
	}
	clone := *r
	s.data.Results[r.RunID] = append(s.data.Results[r.RunID], &clone)
	return nil
}

func (s *JSONStore) ListResults(_ context.Context, runID string) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.data.Results[runID]
	out := make([]*Result, len(src))
	for i, r := range src {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

// ---------- Lifecycle ----------

func (s *JSONStore) Close() error {
	var flushErr error
	s.closeOnce.Do(func() {
		close(s.stopFlush)
		flushErr = s.flush()
	})
	return flushErr
}

// ---------- helpers ----------

func cloneRun(r *Run) *Run {
	clone := *r
	clone.FinishedAt = cloneTime(r.FinishedAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
