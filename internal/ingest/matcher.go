// Package ingest turns files on disk into km content records.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultInclude matches the text formats imported when no pattern is
// given.
var DefaultInclude = []string{"**.md", "**.markdown", "**.txt", "**.rst", "**.org", "**.adoc"}

// DefaultExclude skips VCS metadata and dependency trees.
var DefaultExclude = []string{".git/**", "**/.git/**", "node_modules/**", "**/node_modules/**"}

// Matcher decides which slash-separated relative paths are imported.
type Matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewMatcher compiles include and exclude patterns. "**" crosses
// directory boundaries, "*" does not. Empty include falls back to
// DefaultInclude.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}
	m := &Matcher{}
	var err error
	if m.include, err = compile(include); err != nil {
		return nil, err
	}
	if m.exclude, err = compile(append(append([]string{}, DefaultExclude...), exclude...)); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(filepath.ToSlash(p), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether rel is included and not excluded.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.exclude {
		if g.Match(rel) {
			return false
		}
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
