package evaluation

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// CategoryStats counts scored examples for one ground-truth category.
type CategoryStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Summary accumulates run statistics. Counters only ever grow.
type Summary struct {
	RunID       string                    `json:"run_id,omitempty"`
	Total       int                       `json:"total"`
	Correct     int                       `json:"correct"`
	Skipped     map[Outcome]int           `json:"-"`
	PerCategory map[string]*CategoryStats `json:"per_category"`
	Interrupted bool                      `json:"interrupted,omitempty"`
}

func newSummary() *Summary {
	return &Summary{
		Skipped:     make(map[Outcome]int),
		PerCategory: make(map[string]*CategoryStats),
	}
}

func (s *Summary) score(groundTruth string, match bool) {
	s.Total++
	cs, ok := s.PerCategory[groundTruth]
	if !ok {
		cs = &CategoryStats{}
		s.PerCategory[groundTruth] = cs
	}
	cs.Total++
	if match {
		s.Correct++
		cs.Correct++
	}
}

// Accuracy returns Correct/Total. ok is false when nothing was scored.
func (s *Summary) Accuracy() (acc float64, ok bool) {
	if s.Total == 0 {
		return 0, false
	}
	return float64(s.Correct) / float64(s.Total), true
}

// SkippedTotal returns the number of examples that were not scored.
func (s *Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// FormatPercent renders a ratio as a percentage with two decimals.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// Print writes the three summary lines.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Evaluated %d examples\n", s.Total)
	fmt.Fprintf(w, "Correct predictions: %d\n", s.Correct)
	acc, ok := s.Accuracy()
	if !ok {
		fmt.Fprintln(w, "Accuracy: n/a (no examples scored)")
		return
	}
	fmt.Fprintf(w, "Accuracy: %s\n", FormatPercent(acc))
}

// PrintBreakdown writes per-category accuracy as an aligned table.
func (s *Summary) PrintBreakdown(w io.Writer) {
	names := make([]string, 0, len(s.PerCategory))
	for name := range s.PerCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tCORRECT\tACCURACY")
	for _, name := range names {
		cs := s.PerCategory[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, cs.Total, cs.Correct,
			FormatPercent(float64(cs.Correct)/float64(cs.Total)))
	}
	tw.Flush()
}

// Recompute rebuilds a summary from result records.
func Recompute(records []Record) *Summary {
	s := newSummary()
	for _, r := range records {
		s.score(r.GroundTruth, r.Match)
	}
	return s
}
