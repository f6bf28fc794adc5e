// Package ui renders batch progress on an interactive terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress tracks settled domains of a single batch
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	total     int
	succeeded int
	failed    int
	width     int
	start     time.Time
	finished  bool
}

// NewProgress creates a progress line for total domains written to out
func NewProgress(out io.Writer, total int) *Progress {
	return &Progress{out: out, total: total, width: 40, start: time.Now()}
}

// Observe records one settled domain and redraws the line
func (p *Progress) Observe(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	if ok {
		p.succeeded++
	} else {
		p.failed++
	}
	fmt.Fprintf(p.out, "\r%s", p.line())
}

// Finish prints the final line
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	fmt.Fprintf(p.out, "\r%s [done in %v]\n", p.line(), time.Since(p.start).Round(time.Millisecond))
}

// String returns the current line without redrawing
func (p *Progress) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *Progress) line() string {
	done := p.succeeded + p.failed
	percent := 100.0
	if p.total > 0 {
		percent = float64(done) / float64(p.total) * 100
	}
	filled := int(float64(p.width) * percent / 100)
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	return fmt.Sprintf("Checking certificates [%s] %d/%d (%.1f%%) ok=%d failed=%d",
		bar, done, p.total, percent, p.succeeded, p.failed)
}

// IsTerminal reports whether f is a character device
func IsTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
