// Package prompt renders the classification prompt for one example.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"flaky-eval/taxonomy"
)

const (
	IssueHeading = "### Issue Description:"
	PatchHeading = "### Code Patch:"
)

// Builder renders prompts against a fixed taxonomy. It holds no mutable
// state, so Build is deterministic for equal inputs.
type Builder struct {
	tax *taxonomy.Taxonomy
	// maxPatchBytes caps the patch section; 0 leaves patches untouched.
	maxPatchBytes int
}

// NewBuilder creates a prompt builder. maxPatchBytes <= 0 disables truncation.
func NewBuilder(tax *taxonomy.Taxonomy, maxPatchBytes int) *Builder {
	if maxPatchBytes < 0 {
		maxPatchBytes = 0
	}
	return &Builder{tax: tax, maxPatchBytes: maxPatchBytes}
}

// Build returns the prompt for an issue and, when includePatch is set, its patch.
func (b *Builder) Build(issue, patch string, includePatch bool) string {
	var sb strings.Builder

	sb.WriteString("You are an expert in flaky tests. ")
	if includePatch {
		sb.WriteString("Given the issue description and code patch below, ")
	} else {
		sb.WriteString("Given the issue description below, ")
	}
	sb.WriteString("classify the root cause of flaky tests into one of the following categories:\n\n")

	for _, c := range b.tax.Categories() {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}

	sb.WriteString("\nRespond only with the exact category name. ")
	sb.WriteString("Do not add any explanation, quotes, or punctuation.\n\n")

	sb.WriteString(IssueHeading)
	sb.WriteByte('\n')
	sb.WriteString(issue)
	sb.WriteByte('\n')

	if includePatch {
		sb.WriteByte('\n')
		sb.WriteString(PatchHeading)
		sb.WriteByte('\n')
		sb.WriteString(truncatePatch(patch, b.maxPatchBytes))
		sb.WriteByte('\n')
	}

	return sb.String()
}

// truncatePatch cuts the patch to maxSize bytes without splitting a UTF-8
// sequence and notes the original size.
func truncatePatch(patch string, maxSize int) string {
	if maxSize <= 0 || len(patch) <= maxSize {
		return patch
	}
	truncated := patch[:maxSize]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + fmt.Sprintf("\n...(patch truncated, original size: %d bytes)", len(patch))
}
