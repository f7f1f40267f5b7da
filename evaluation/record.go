package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"flaky-eval/taxonomy"
)

// Record is one line of the result log.
type Record struct {
	ID          json.RawMessage `json:"id"`
	GroundTruth string          `json:"ground_truth"`
	Predicted   string          `json:"predicted"`
	Match       bool            `json:"match"`
	Prompt      string          `json:"prompt"`
}

// Consistent reports whether Match agrees with the case-insensitive
// comparison of Predicted and GroundTruth.
func (r Record) Consistent() bool {
	return r.Match == taxonomy.Equal(r.Predicted, r.GroundTruth)
}

// ResultWriter appends records as newline-delimited JSON. Non-ASCII text and
// HTML-sensitive characters are written unescaped.
type ResultWriter struct {
	enc    *json.Encoder
	closer io.Closer
	n      int
}

// NewResultWriter writes records to w.
func NewResultWriter(w io.Writer) *ResultWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	rw := &ResultWriter{enc: enc}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	return rw
}

// CreateResultLog truncates or creates the file at path and returns a writer
// for it. Each record reaches the file as soon as it is written.
func CreateResultLog(path string) (*ResultWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	return NewResultWriter(f), nil
}

// Write appends one record.
func (w *ResultWriter) Write(rec Record) error {
	if len(rec.ID) == 0 {
		rec.ID = json.RawMessage("null")
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *ResultWriter) Count() int { return w.n }

// Close closes the underlying file, if any.
func (w *ResultWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

// ReadResults decodes every record of a result log.
func ReadResults(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// ReadResultFile opens and decodes a result log.
func ReadResultFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	defer f.Close()
	return ReadResults(f)
}
