package rconkit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// AllowList holds the compiled patterns a command must match before it is
// forwarded to the host. An empty list denies everything.
//
// File format: one regular expression per line, matched against the whole
// command string. Blank lines and lines starting with '#' are ignored. A line
// that does not compile is logged and skipped; the rest of the file still
// loads.
type AllowList struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	log      *zap.SugaredLogger
}

// NewAllowList creates an empty (deny-all) allow-list.
func NewAllowList(log *zap.SugaredLogger) *AllowList {
	return &AllowList{log: orNop(log)}
}

// Refresh replaces the patterns with the contents of the file at path.
// A missing or unreadable file leaves the list empty.
func (a *AllowList) Refresh(path string) error {
	f, err := os.Open(path)
	if err != nil {
		a.replace(nil)
		a.log.Warnw("could not load allow-list file, denying all commands", "path", path, "error", err)
		return NewRconError(KindResource, "refresh", "could not load file: "+path, err)
	}
	defer f.Close()

	patterns, err := a.compileAll(f)
	a.replace(patterns)
	a.log.Infow("allow-list refreshed", "path", path, "patterns", len(patterns))
	return err
}

// SetPatterns replaces the patterns with the given expressions, using the
// same rules as Refresh.
func (a *AllowList) SetPatterns(lines []string) error {
	patterns, err := a.compileAll(strings.NewReader(strings.Join(lines, "\n")))
	a.replace(patterns)
	return err
}

// IsAllowed reports whether some pattern matches the entire command.
func (a *AllowList) IsAllowed(command string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, re := range a.patterns {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// Patterns returns the source expressions currently loaded.
func (a *AllowList) Patterns() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.patterns))
	for i, re := range a.patterns {
		out[i] = unanchor(re.String())
	}
	return out
}

func (a *AllowList) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.patterns)
}

func (a *AllowList) replace(patterns []*regexp.Regexp) {
	a.mu.Lock()
	a.patterns = patterns
	a.mu.Unlock()
}

func (a *AllowList) compileAll(r io.Reader) ([]*regexp.Regexp, error) {
	var patterns []*regexp.Regexp
	var errs []error

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		re, err := compileAnchored(line)
		if err != nil {
			a.log.Warnw("skipping invalid allow-list pattern", "line", lineNo, "pattern", line, "error", err)
			errs = append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		a.log.Debugw("adding to allow-list", "pattern", line)
		patterns = append(patterns, re)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return patterns, NewRconError(KindResource, "refresh", "invalid allow-list entries", errors.Join(errs...))
	}
	return patterns, nil
}

const (
	anchorPrefix = `^(?:`
	anchorSuffix = `)$`
)

func compileAnchored(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(anchorPrefix + expr + anchorSuffix)
}

func unanchor(expr string) string {
	return strings.TrimSuffix(strings.TrimPrefix(expr, anchorPrefix), anchorSuffix)
}
