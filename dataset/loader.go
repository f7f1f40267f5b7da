// Package dataset reads labeled flaky-test examples from a directory of
// JSON documents.
package dataset

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the suffix of files recognized as example documents.
const Extension = ".json"

// ParseError reports a document that could not be read or decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Load lists dir and returns a lazy sequence over its example documents.
// Subdirectories are not descended into. Each document is read only when the
// sequence reaches it; per-file failures are yielded as *ParseError and the
// sequence continues. The sequence is single-use.
func Load(dir string) (iter.Seq2[*Example, error], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	consumed := false
	return func(yield func(*Example, error) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, p := range paths {
			ex, err := ReadFile(p)
			if !yield(ex, err) {
				return
			}
		}
	}, nil
}

// ReadFile decodes a single example document.
func ReadFile(path string) (*Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var ex Example
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	ex.Path = path
	return &ex, nil
}
