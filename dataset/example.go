package dataset

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Example is one labeled flaky-test document.
type Example struct {
	Path              string          `json:"-"`
	ID                json.RawMessage `json:"id"`
	RootCauseCategory Label           `json:"root_cause_category"`
	IssueDescription  string          `json:"issue_description"`
	FilesChanged      []FileChange    `json:"files_changed"`
}

// FileChange is one entry of files_changed. Patch is nil when the key is
// absent or null.
type FileChange struct {
	Filename string  `json:"filename,omitempty"`
	Patch    *string `json:"patch"`
}

// HasID reports whether the document carried a non-null id.
func (e *Example) HasID() bool {
	id := bytes.TrimSpace(e.ID)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// Patch joins every present patch with a blank line between them.
// Empty patches still count as present.
func (e *Example) Patch() string {
	var parts []string
	for _, f := range e.FilesChanged {
		if f.Patch != nil {
			parts = append(parts, *f.Patch)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Label is a ground-truth value. Strings decode as-is; other JSON scalars
// keep their literal text; null decodes to the empty label.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	*l = Label(data)
	return nil
}

func (l Label) String() string { return string(l) }
