// Package evaluation runs the classify-and-score loop over a dataset and
// accumulates accuracy statistics.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"flaky-eval/classifier"
	"flaky-eval/dataset"
	"flaky-eval/logger"
	"flaky-eval/prompt"
	"flaky-eval/store"
	"flaky-eval/taxonomy"
)

// Config wires an Evaluator. Store and Progress are optional.
type Config struct {
	Taxonomy     *taxonomy.Taxonomy
	Prompts      *prompt.Builder
	Classifier   classifier.Classifier
	Results      *ResultWriter
	Store        store.Store
	Progress     Progress
	Log          logger.Logger
	Provider     string
	Model        string
	InputDir     string
	IncludePatch bool
	RunID        string
}

// Evaluator scores examples one at a time. It owns the run counters and the
// result log for the duration of a run and is not safe for concurrent use.
type Evaluator struct {
	tax          *taxonomy.Taxonomy
	prompts      *prompt.Builder
	classifier   classifier.Classifier
	results      *ResultWriter
	store        store.Store
	progress     Progress
	log          logger.Logger
	provider     string
	model        string
	inputDir     string
	includePatch bool
	runID        string
	summary      *Summary
}

// New validates cfg and creates an Evaluator.
func New(cfg Config) (*Evaluator, error) {
	if cfg.Taxonomy == nil {
		return nil, errors.New("evaluation: taxonomy is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("evaluation: classifier is required")
	}
	if cfg.Results == nil {
		return nil, errors.New("evaluation: result writer is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("evaluation: model is required")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.NewBuilder(cfg.Taxonomy, 0)
	}
	if cfg.Progress == nil {
		cfg.Progress = nopProgress{}
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	summary := newSummary()
	summary.RunID = cfg.RunID
	return &Evaluator{
		tax:          cfg.Taxonomy,
		prompts:      cfg.Prompts,
		classifier:   cfg.Classifier,
		results:      cfg.Results,
		store:        cfg.Store,
		progress:     cfg.Progress,
		log:          cfg.Log.WithFields(logger.String("run_id", cfg.RunID)),
		provider:     cfg.Provider,
		model:        cfg.Model,
		inputDir:     cfg.InputDir,
		includePatch: cfg.IncludePatch,
		runID:        cfg.RunID,
		summary:      summary,
	}, nil
}

// RunID returns the identifier of this evaluator's run.
func (e *Evaluator) RunID() string { return e.runID }

// Summary returns the statistics accumulated so far.
func (e *Evaluator) Summary() *Summary { return e.summary }

// Run evaluates every example in seq. Per-example problems are skipped; the
// returned error is non-nil only when the result log cannot be written.
// Cancelling ctx stops the run after the current example.
func (e *Evaluator) Run(ctx context.Context, seq iter.Seq2[*dataset.Example, error]) (*Summary, error) {
	started := time.Now().UTC()
	run := &store.Run{
		ID:           e.runID,
		Provider:     e.provider,
		Model:        e.model,
		InputDir:     e.inputDir,
		IncludePatch: e.includePatch,
		Status:       store.StatusRunning,
		StartedAt:    started,
	}
	e.storeCall("store.create_run_failed", func(ctx context.Context) error {
		return e.store.CreateRun(ctx, run)
	})
	e.log.Info("eval.started",
		logger.String("model", e.model),
		logger.String("input_dir", e.inputDir),
		logger.Bool("include_patch", e.includePatch),
	)

	var runErr error
	for ex, loadErr := range seq {
		if ctx.Err() != nil {
			e.summary.Interrupted = true
			break
		}

		var outcome Outcome
		if loadErr != nil {
			e.log.Warn("dataset.parse_failed", logger.Err(loadErr))
			outcome = SkipMalformed
		} else {
			outcome, runErr = e.Evaluate(ctx, ex)
		}
		if outcome != Scored {
			e.summary.Skipped[outcome]++
		}
		e.progress.Tick(e.summary.Total)
		if runErr != nil {
			break
		}
	}
	e.progress.Done()
	if ctx.Err() != nil {
		e.summary.Interrupted = true
	}

	finished := time.Now().UTC()
	run.Total = e.summary.Total
	run.Correct = e.summary.Correct
	run.FinishedAt = &finished
	switch {
	case runErr != nil:
		run.Status = store.StatusFailed
	case e.summary.Interrupted:
		run.Status = store.StatusInterrupted
	default:
		run.Status = store.StatusCompleted
	}
	e.storeCall("store.finish_run_failed", func(ctx context.Context) error {
		return e.store.FinishRun(ctx, run)
	})

	fields := []logger.Field{
		logger.String("status", string(run.Status)),
		logger.Int("total", e.summary.Total),
		logger.Int("correct", e.summary.Correct),
		logger.Int("skipped", e.summary.SkippedTotal()),
		logger.Duration("elapsed", finished.Sub(started)),
	}
	if acc, ok := e.summary.Accuracy(); ok {
		fields = append(fields, logger.String("accuracy", FormatPercent(acc)))
	}
	e.log.Info("eval.finished", fields...)

	return e.summary, runErr
}

// Evaluate applies the skip rules to one example, classifies it, and scores
// it. The error is non-nil only when the result record cannot be written.
func (e *Evaluator) Evaluate(ctx context.Context, ex *dataset.Example) (Outcome, error) {
	log := e.log.WithFields(logger.String("file", ex.Path))

	if ex.RootCauseCategory == "" {
		return e.skip(log, SkipNoLabel), nil
	}
	gt := strings.TrimSpace(string(ex.RootCauseCategory))
	if !e.tax.Contains(gt) {
		return e.skip(log, SkipUnknownLabel, logger.String("label", gt)), nil
	}

	issue := ex.IssueDescription
	patch := ex.Patch()
	if issue == "" {
		return e.skip(log, SkipEmptyIssue), nil
	}
	if e.includePatch && patch == "" {
		return e.skip(log, SkipEmptyPatch), nil
	}
	if !ex.HasID() {
		return e.skip(log, SkipNoID), nil
	}

	text := e.prompts.Build(issue, patch, e.includePatch)
	pred := e.classifier.Classify(ctx, text, e.model)
	if !pred.OK() {
		return e.skip(log, SkipNoPrediction, logger.Err(pred.Err)), nil
	}

	match := taxonomy.Equal(pred.Label, gt)
	rec := Record{
		ID:          ex.ID,
		GroundTruth: gt,
		Predicted:   pred.Label,
		Match:       match,
		Prompt:      text,
	}
	if err := e.results.Write(rec); err != nil {
		return Scored, err
	}
	e.summary.score(gt, match)

	e.storeCall("store.save_result_failed", func(ctx context.Context) error {
		return e.store.SaveResult(ctx, &store.Result{
			RunID:       e.runID,
			ExampleID:   string(ex.ID),
			GroundTruth: gt,
			Predicted:   pred.Label,
			Match:       match,
			Prompt:      text,
			CreatedAt:   time.Now().UTC(),
		})
	})

	log.Debug("eval.scored",
		logger.String("ground_truth", gt),
		logger.String("predicted", pred.Label),
		logger.Bool("match", match),
	)
	return Scored, nil
}

func (e *Evaluator) skip(log logger.Logger, o Outcome, fields ...logger.Field) Outcome {
	log.Debug("eval.skipped", append([]logger.Field{logger.String("reason", o.String())}, fields...)...)
	return o
}

// storeCall runs fn against the optional store with its own timeout, so a
// cancelled run still records its final state. Failures are logged only.
func (e *Evaluator) storeCall(event string, fn func(ctx context.Context) error) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		e.log.Error(event, logger.Err(fmt.Errorf("run %s: %w", e.runID, err)))
	}
}
