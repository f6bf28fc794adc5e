// Package domains loads the list of domains checked by scheduled runs.
package domains

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source yields domains for a batch run
type Source interface {
	Domains(ctx context.Context) ([]string, error)
}

// Static is a fixed list, usually from configuration
type Static []string

// Domains returns a copy of the list
func (s Static) Domains(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// File reads a newline separated list on every call so edits apply to the next run
type File struct {
	Path string
}

// Domains parses the file
func (f File) Domains(context.Context) ([]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open domains file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Parse reads one domain per line, skipping blanks and # comments and
// trimming a trailing root dot
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.TrimSuffix(line, "."))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read domains: %w", err)
	}
	return out, nil
}

// Multi concatenates sources in order. Duplicates are kept.
type Multi []Source

// Domains fails if any source fails
func (m Multi) Domains(ctx context.Context) ([]string, error) {
	var out []string
	for _, s := range m {
		ds, err := s.Domains(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}
