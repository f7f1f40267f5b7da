package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flaky-eval/classifier"
	"flaky-eval/dataset"
	"flaky-eval/logger"
	"flaky-eval/prompt"
	"flaky-eval/store"
	"flaky-eval/taxonomy"
)

// scriptedClassifier answers from a queue and records every prompt.
type scriptedClassifier struct {
	answers []classifier.Prediction
	prompts []string
	models  []string
}

func (c *scriptedClassifier) Classify(_ context.Context, p, model string) classifier.Prediction {
	c.prompts = append(c.prompts, p)
	c.models = append(c.models, model)
	if len(c.answers) == 0 {
		return classifier.Prediction{Err: errors.New("no scripted answer")}
	}
	next := c.answers[0]
	c.answers = c.answers[1:]
	return next
}

func label(s string) classifier.Prediction { return classifier.Prediction{Label: s} }

func strPtr(s string) *string { return &s }

func example(id, category, issue string, patches ...string) *dataset.Example {
	ex := &dataset.Example{
		Path:              id + ".json",
		RootCauseCategory: dataset.Label(category),
		IssueDescription:  issue,
	}
	if id != "" {
		ex.ID = json.RawMessage(`"` + id + `"`)
	}
	for _, p := range patches {
		ex.FilesChanged = append(ex.FilesChanged, dataset.FileChange{Patch: strPtr(p)})
	}
	return ex
}

func seqOf(items ...any) iter.Seq2[*dataset.Example, error] {
	return func(yield func(*dataset.Example, error) bool) {
		for _, it := range items {
			var ok bool
			switch v := it.(type) {
			case *dataset.Example:
				ok = yield(v, nil)
			case error:
				ok = yield(nil, v)
			}
			if !ok {
				return
			}
		}
	}
}

type harness struct {
	eval *Evaluator
	cls  *scriptedClassifier
	out  *bytes.Buffer
}

func newHarness(t *testing.T, includePatch bool, answers ...classifier.Prediction) *harness {
	t.Helper()
	tax := taxonomy.Default()
	cls := &scriptedClassifier{answers: answers}
	out := &bytes.Buffer{}
	ev, err := New(Config{
		Taxonomy:     tax,
		Prompts:      prompt.NewBuilder(tax, 0),
		Classifier:   cls,
		Results:      NewResultWriter(out),
		Model:        "gpt-4",
		IncludePatch: includePatch,
		RunID:        "run-1",
	})
	require.NoError(t, err)
	return &harness{eval: ev, cls: cls, out: out}
}

func (h *harness) records(t *testing.T) []Record {
	t.Helper()
	recs, err := ReadResults(bytes.NewReader(h.out.Bytes()))
	require.NoError(t, err)
	return recs
}

func TestNewValidatesConfig(t *testing.T) {
	tax := taxonomy.Default()
	cls := &scriptedClassifier{}
	rw := NewResultWriter(&bytes.Buffer{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no taxonomy", Config{Classifier: cls, Results: rw, Model: "m"}},
		{"no classifier", Config{Taxonomy: tax, Results: rw, Model: "m"}},
		{"no results", Config{Taxonomy: tax, Classifier: cls, Model: "m"}},
		{"no model", Config{Taxonomy: tax, Classifier: cls, Results: rw}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}

	ev, err := New(Config{Taxonomy: tax, Classifier: cls, Results: rw, Model: "m"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.RunID(), "run id is generated when not supplied")
}

func TestRunSkipsMissingLabel(t *testing.T) {
	h := newHarness(t, true, label("Async wait"), label("Network"), label("Time"))

	sum, err := h.eval.Run(context.Background(), seqOf(
		example("1", "Async wait", "issue one", "p1"),
		example("2", "", "issue two", "p2"),
		example("3", "Network", "issue three", "p3"),
		example("4", "Time", "issue four", "p4"),
	))
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 3, sum.Correct)
	assert.Equal(t, 1, sum.Skipped[SkipNoLabel])
	assert.Len(t, h.records(t), 3)
	assert.Len(t, h.cls.prompts, 3, "unlabeled example must not reach the classifier")
}

func TestAccuracyReporting(t *testing.T) {
	tests := []struct {
		name    string
		answers []classifier.Prediction
		want    string
	}{
		{"all correct", []classifier.Prediction{label("Async wait"), label("Async wait"), label("Async wait")}, "Accuracy: 100.00%"},
		{"none correct", []classifier.Prediction{label("Logic"), label("Logic"), label("Logic")}, "Accuracy: 0.00%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false, tt.answers...)
			sum, err := h.eval.Run(context.Background(), seqOf(
				example("a", "Async wait", "x"),
				example("b", "Async wait", "y"),
				example("c", "Async wait", "z"),
			))
			require.NoError(t, err)

			var buf bytes.Buffer
			sum.Print(&buf)
			assert.Contains(t, buf.String(), "Evaluated 3 examples\n")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestZeroScoredIsReported(t *testing.T) {
	h := newHarness(t, true)
	sum, err := h.eval.Run(context.Background(), seqOf(
		example("1", "", "issue", "p"),
	))
	require.NoError(t, err)

	_, ok := sum.Accuracy()
	assert.False(t, ok)

	var buf bytes.Buffer
	sum.Print(&buf)
	assert.Equal(t, "Evaluated 0 examples\nCorrect predictions: 0\nAccuracy: n/a (no examples scored)\n", buf.String())
	assert.Empty(t, h.out.String())
}

func TestEvaluateSkipRules(t *testing.T) {
	tests := []struct {
		name         string
		includePatch bool
		ex           *dataset.Example
		want         Outcome
	}{
		{"missing label", true, example("1", "", "issue", "p"), SkipNoLabel},
		{"unknown label", true, example("1", "Unknown", "issue", "p"), SkipUnknownLabel},
		{"label wrong case", true, example("1", "async wait", "issue", "p"), SkipUnknownLabel},
		{"empty issue", true, example("1", "Network", "", "p"), SkipEmptyIssue},
		{"empty issue without patch", false, example("1", "Network", ""), SkipEmptyIssue},
		{"no patches in patch mode", true, example("1", "Network", "issue"), SkipEmptyPatch},
		{"only empty patch in patch mode", true, example("1", "Network", "issue", ""), SkipEmptyPatch},
		{"missing id", true, example("", "Network", "issue", "p"), SkipNoID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.includePatch, label("Network"))
			got, err := h.eval.Evaluate(context.Background(), tt.ex)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, h.cls.prompts)
			assert.Empty(t, h.out.String())
		})
	}
}

func TestEvaluateTrimsGroundTruth(t *testing.T) {
	h := newHarness(t, false, label("Network"))
	got, err := h.eval.Evaluate(context.Background(), example("1", "  Network\n", "issue"))
	require.NoError(t, err)
	assert.Equal(t, Scored, got)
	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "Network", recs[0].GroundTruth)
}

func TestEvaluateCaseInsensitiveMatch(t *testing.T) {
	h := newHarness(t, true, label("async wait"))
	got, err := h.eval.Evaluate(context.Background(), example("7", "Async wait", "issue", "p"))
	require.NoError(t, err)
	assert.Equal(t, Scored, got)

	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Match)
	assert.Equal(t, "async wait", recs[0].Predicted)
	assert.Equal(t, `"7"`, string(recs[0].ID))
	assert.True(t, recs[0].Consistent())
}

func TestEvaluateClassifierFailureSkips(t *testing.T) {
	h := newHarness(t, true, classifier.Prediction{Err: errors.New("boom")})
	got, err := h.eval.Evaluate(context.Background(), example("1", "Network", "issue", "p"))
	require.NoError(t, err)
	assert.Equal(t, SkipNoPrediction, got)
	assert.Zero(t, h.eval.Summary().Total)
	assert.Empty(t, h.out.String())
}

func TestRunContinuesAfterMalformedInput(t *testing.T) {
	h := newHarness(t, true, label("Network"))
	sum, err := h.eval.Run(context.Background(), seqOf(
		&dataset.ParseError{Path: "bad.json", Err: errors.New("unexpected EOF")},
		example("1", "Network", "issue", "p"),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Skipped[SkipMalformed])
}

func TestPromptModes(t *testing.T) {
	h := newHarness(t, false, label("Network"))
	_, err := h.eval.Evaluate(context.Background(), example("1", "Network", "the issue", "diff --git"))
	require.NoError(t, err)
	require.Len(t, h.cls.prompts, 1)
	assert.NotContains(t, h.cls.prompts[0], prompt.PatchHeading)
	assert.NotContains(t, h.cls.prompts[0], "diff --git")
	assert.Equal(t, []string{"gpt-4"}, h.cls.models)

	h = newHarness(t, true, label("Network"))
	_, err = h.eval.Evaluate(context.Background(), example("1", "Network", "the issue", "a", "b"))
	require.NoError(t, err)
	require.Len(t, h.cls.prompts, 1)
	assert.Contains(t, h.cls.prompts[0], prompt.PatchHeading+"\na\n\nb\n")

	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, h.cls.prompts[0], recs[0].Prompt)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, false, label("Network"), label("Network"))
	ctx, cancel := context.WithCancel(context.Background())

	seq := func(yield func(*dataset.Example, error) bool) {
		if !yield(example("1", "Network", "issue"), nil) {
			return
		}
		cancel()
		yield(example("2", "Network", "issue"), nil)
	}
	sum, err := h.eval.Run(ctx, seq)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.Equal(t, 1, sum.Total)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRunAbortsWhenResultLogFails(t *testing.T) {
	tax := taxonomy.Default()
	ev, err := New(Config{
		Taxonomy:   tax,
		Classifier: &scriptedClassifier{answers: []classifier.Prediction{label("Network"), label("Network")}},
		Results:    NewResultWriter(failingWriter{}),
		Model:      "gpt-4",
	})
	require.NoError(t, err)

	_, err = ev.Run(context.Background(), seqOf(
		example("1", "Network", "issue"),
		example("2", "Network", "issue"),
	))
	assert.ErrorContains(t, err, "disk full")
}

func TestRunMirrorsToStore(t *testing.T) {
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "runs.json"), 0, logger.Nop())
	require.NoError(t, err)
	defer st.Close()

	tax := taxonomy.Default()
	ev, err := New(Config{
		Taxonomy:   tax,
		Classifier: &scriptedClassifier{answers: []classifier.Prediction{label("Network"), label("Time")}},
		Results:    NewResultWriter(&bytes.Buffer{}),
		Store:      st,
		Model:      "gpt-4",
		Provider:   "openai",
		InputDir:   "data",
		RunID:      "run-42",
	})
	require.NoError(t, err)

	_, err = ev.Run(context.Background(), seqOf(
		example("1", "Network", "issue"),
		example("2", "Network", "issue"),
	))
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), "run-42")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, store.StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Correct)
	assert.NotNil(t, run.FinishedAt)

	results, err := st.ListResults(context.Background(), "run-42")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, `"1"`, results[0].ExampleID)
	assert.False(t, results[1].Match)
}

func TestResultLogRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultWriter(&buf)
	require.NoError(t, w.Write(Record{ID: json.RawMessage(`12`), GroundTruth: "I/O", Predicted: "I/O", Match: true, Prompt: "a <b> & ü"}))
	require.NoError(t, w.Write(Record{GroundTruth: "Time", Predicted: "Logic", Match: false, Prompt: "p"}))
	assert.Equal(t, 2, w.Count())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"prompt":"a <b> & ü"`)
	assert.Contains(t, lines[1], `"id":null`)

	recs, err := ReadResults(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.Consistent())
	}
	assert.Equal(t, "12", string(recs[0].ID))
}

func TestReadResultsReportsBadLine(t *testing.T) {
	in := `{"id":1,"ground_truth":"Time","predicted":"Time","match":true,"prompt":"p"}` + "\n{oops\n"
	recs, err := ReadResults(strings.NewReader(in))
	assert.ErrorContains(t, err, "record 2")
	assert.Len(t, recs, 1)
}

func TestRecomputeAndBreakdown(t *testing.T) {
	sum := Recompute([]Record{
		{GroundTruth: "Time", Predicted: "Time", Match: true},
		{GroundTruth: "Time", Predicted: "Logic", Match: false},
		{GroundTruth: "Async wait", Predicted: "async wait", Match: true},
	})
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Correct)
	assert.Equal(t, CategoryStats{Total: 2, Correct: 1}, *sum.PerCategory["Time"])

	var buf bytes.Buffer
	sum.PrintBreakdown(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "CATEGORY"))
	assert.True(t, strings.HasPrefix(lines[1], "Async wait"))
	assert.Contains(t, lines[2], "50.00%")
}

func TestOutcomeNames(t *testing.T) {
	assert.Equal(t, "scored", Scored.String())
	assert.Equal(t, "no_label", SkipNoLabel.String())
}
