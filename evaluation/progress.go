package evaluation

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Progress is ticked once per example considered.
type Progress interface {
	Tick(scored int)
	Done()
}

// ConsoleProgress rewrites a single status line on w.
type ConsoleProgress struct {
	w     io.Writer
	seen  int
	label *color.Color
}

// NewConsoleProgress creates a progress line writer, typically on stderr.
func NewConsoleProgress(w io.Writer) *ConsoleProgress {
	return &ConsoleProgress{w: w, label: color.New(color.FgCyan)}
}

func (p *ConsoleProgress) Tick(scored int) {
	p.seen++
	fmt.Fprintf(p.w, "\r%s %d considered, %d scored", p.label.Sprint("[eval]"), p.seen, scored)
}

func (p *ConsoleProgress) Done() {
	if p.seen > 0 {
		fmt.Fprintln(p.w)
	}
}

type nopProgress struct{}

func (nopProgress) Tick(int) {}
func (nopProgress) Done()    {}
