package evaluation

// Outcome is the terminal state of one example.
type Outcome int

const (
	Scored Outcome = iota
	SkipMalformed
	SkipNoLabel
	SkipUnknownLabel
	SkipEmptyIssue
	SkipEmptyPatch
	SkipNoID
	SkipNoPrediction
)

var outcomeNames = map[Outcome]string{
	Scored:           "scored",
	SkipMalformed:    "malformed",
	SkipNoLabel:      "no_label",
	SkipUnknownLabel: "unknown_label",
	SkipEmptyIssue:   "empty_issue",
	SkipEmptyPatch:   "empty_patch",
	SkipNoID:         "no_id",
	SkipNoPrediction: "no_prediction",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}
