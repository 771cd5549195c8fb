package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Progress renders a one-line bar for batch operations such as imports.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	total   int
	done    int
	failed  int
	started time.Time
	now     func() time.Time
}

// NewProgress starts a progress line for total items.
func NewProgress(w io.Writer, label string, total int) *Progress {
	p := &Progress{w: w, label: label, total: total, now: time.Now}
	p.started = p.now()
	return p
}

// Add records a finished batch and redraws the line.
func (p *Progress) Add(succeeded, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += succeeded + failed
	p.failed += failed
	p.render()
}

// Finish ends the line with a summary.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintf(p.w, "\n%s: %d written, %d failed in %s\n",
		p.label, p.done-p.failed, p.failed, p.now().Sub(p.started).Round(time.Millisecond))
}

func (p *Progress) render() {
	if p.total <= 0 {
		return
	}
	const width = 30
	filled := min(width*p.done/p.total, width)
	fmt.Fprintf(p.w, "\r%s [%s%s] %d/%d",
		p.label, strings.Repeat("#", filled), strings.Repeat(".", width-filled), p.done, p.total)
}
