// Package taxonomy holds the closed set of flaky-test root cause categories
// shown to the model and used to validate ground-truth labels.
package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one root cause label and the description shown to the model.
type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Taxonomy is an ordered, read-only set of categories.
type Taxonomy struct {
	categories []Category
	index      map[string]int
}

var defaultCategories = []Category{
	{"Test order dependency", "The test outcome depends on the order in which the tests are run."},
	{"Async wait", "The test execution makes an asynchronous call and does not properly wait for the result of the call to become available before using it."},
	{"Concurrency", "The test non-determinism is due to different threads interacting in a non-desirable manner (but not due to asynchronous calls from the Async Wait category), e.g., due to data races, atomicity violations, or deadlocks."},
	{"Resource leak", "A resource leak occurs whenever the application does not properly manage (acquire or release) one or more of its resources, e.g., memory allocations or database connections, leading to intermittent test failures."},
	{"Network", "Tests whose execution depends on network can be flaky because the network is a resource that is hard to control, e.g., due to remote connection failures or local bad socket management."},
	{"Time", "Tests that depend on system time or platform time can fail non-deterministically due to time zone changes, precision of time reported, or other time-related issues."},
	{"I/O", "I/O operations can introduce flakiness when resources like files are not properly managed."},
	{"Randomness", "The use of random objects can make some tests flaky."},
	{"Floating point operations", "Dealing with floating point operations can lead to non-determinism."},
	{"Unordered collections", "Tests that assume a specific order in unordered collections can be flaky."},
	{"OS", "Tests can be flaky due to operating system-level issues, such as dependencies on specific system types or configurations."},
	{"Environment", "Tests that depend on specific environment (such as third-party libraries)."},
	{"Logic", "Tests that have inherent logical issues leading to non-deterministic outcomes, such as off-by-one errors or deserialization issues."},
}

// Default returns the built-in root cause taxonomy.
func Default() *Taxonomy {
	t, err := New(defaultCategories)
	if err != nil {
		panic(err)
	}
	return t
}

// New validates categories and builds a taxonomy preserving their order.
func New(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, errors.New("taxonomy has no categories")
	}
	t := &Taxonomy{
		categories: make([]Category, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for i, c := range categories {
		c.Name = strings.TrimSpace(c.Name)
		c.Description = strings.TrimSpace(c.Description)
		if c.Name == "" {
			return nil, fmt.Errorf("category %d: empty name", i)
		}
		if c.Description == "" {
			return nil, fmt.Errorf("category %q: empty description", c.Name)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("category %q: duplicate name", c.Name)
		}
		t.categories[i] = c
		t.index[c.Name] = i
	}
	return t, nil
}

type fileFormat struct {
	Categories []Category `yaml:"categories"`
}

// Load reads a taxonomy from a YAML file of the form
//
//	categories:
//	  - name: Network
//	    description: ...
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	t, err := New(f.Categories)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

// Contains reports whether name is a canonical category name.
// The check is case-sensitive.
func (t *Taxonomy) Contains(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Describe returns the description for name.
func (t *Taxonomy) Describe(name string) (string, bool) {
	i, ok := t.index[name]
	if !ok {
		return "", false
	}
	return t.categories[i].Description, true
}

// Categories returns a copy of the categories in taxonomy order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Names returns category names in taxonomy order.
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

func (t *Taxonomy) Len() int { return len(t.categories) }

// Equal compares a prediction with a ground-truth label, ignoring case.
func Equal(predicted, groundTruth string) bool {
	return strings.EqualFold(predicted, groundTruth)
}
