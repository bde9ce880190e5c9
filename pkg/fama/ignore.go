package fama

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const gitignoreFile = ".gitignore"

// ignoreMatcher holds gitignore patterns collected while walking. Patterns
// carry the directory that declared them, so one ordered list serves the
// whole tree; later (deeper) patterns take precedence.
type ignoreMatcher struct {
	anchor   string // absolute directory patterns are relative to
	patterns []gitignore.Pattern
	loaded   map[string]bool
	logger   *slog.Logger
}

// newIgnoreMatcher loads the rules that apply at anchor: .git/info/exclude,
// .famaignore and the configured patterns. .gitignore files are added as
// directories are entered.
func newIgnoreMatcher(anchor string, configPatterns []string, logger *slog.Logger) (*ignoreMatcher, error) {
	abs, err := filepath.Abs(anchor)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for %s: %w", anchor, err)
	}
	m := &ignoreMatcher{
		anchor: abs,
		loaded: make(map[string]bool),
		logger: logger.With(slog.String("component", "ignoreMatcher")),
	}
	for _, name := range []string{filepath.Join(".git", "info", "exclude"), IgnoreFileName} {
		if err := m.loadFile(filepath.Join(abs, name), nil); err != nil {
			return nil, err
		}
	}
	for _, p := range configPatterns {
		m.add(p, nil)
	}
	m.logger.Debug("Ignore rules loaded", slog.String("anchor", abs), slog.Int("count", len(m.patterns)))
	return m, nil
}

func (m *ignoreMatcher) add(line string, domain []string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
		return
	}
	m.patterns = append(m.patterns, gitignore.ParsePattern(line, domain))
}

// loadFile appends the patterns of one ignore file. A missing file is not an
// error.
func (m *ignoreMatcher) loadFile(path string, domain []string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil
		}
		return fmt.Errorf("open ignore file %s: %w", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.add(scanner.Text(), domain)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return nil
}

// enter loads the .gitignore of dir, once.
func (m *ignoreMatcher) enter(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil || m.loaded[abs] {
		return
	}
	m.loaded[abs] = true
	domain, ok := m.components(abs)
	if !ok {
		return
	}
	if err := m.loadFile(filepath.Join(abs, gitignoreFile), domain); err != nil {
		m.logger.Warn("Skipping unreadable ignore file", slog.String("dir", abs), slog.String("error", err.Error()))
	}
}

// enterAncestors loads every .gitignore between the anchor and dir, inclusive.
func (m *ignoreMatcher) enterAncestors(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	parts, ok := m.components(abs)
	if !ok {
		return
	}
	m.enter(m.anchor)
	cur := m.anchor
	for _, p := range parts {
		cur = filepath.Join(cur, p)
		m.enter(cur)
	}
}

// components splits abs into path elements relative to the anchor. ok is
// false when abs lies outside it.
func (m *ignoreMatcher) components(abs string) ([]string, bool) {
	rel, err := filepath.Rel(m.anchor, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	if rel == "." {
		return []string{}, true
	}
	return strings.Split(filepath.ToSlash(rel), "/"), true
}

// Match reports whether the absolute path is ignored.
func (m *ignoreMatcher) Match(abs string, isDir bool) bool {
	parts, ok := m.components(abs)
	if !ok || len(parts) == 0 {
		return false
	}
	for i := len(m.patterns) - 1; i >= 0; i-- {
		switch m.patterns[i].Match(parts, isDir) {
		case gitignore.Exclude:
			return true
		case gitignore.Include:
			return false
		}
	}
	return false
}
