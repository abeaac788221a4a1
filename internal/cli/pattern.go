// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrNoMatch indicates a pattern matched no entry date.
var ErrNoMatch = errors.New("no matching entry")

// IsPattern reports whether s contains glob characters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// ExpandPattern expands a glob pattern such as "2026-01-*" or "2026-0[12]-??"
// against the available entry dates. Without glob characters the pattern must
// equal one of the dates.
func ExpandPattern(pattern string, dates []string) ([]string, error) {
	// Validate pattern syntax
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !IsPattern(pattern) {
		for _, d := range dates {
			if d == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("%w for %s", ErrNoMatch, pattern)
	}

	var matches []string
	for _, d := range dates {
		matched, err := path.Match(pattern, d)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, d)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w for pattern '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands every pattern and returns the unique matching dates
// in ascending order.
func ExpandPatterns(patterns []string, dates []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, dates)
		if err != nil {
			return nil, err
		}
		for _, d := range matches {
			if !seen[d] {
				seen[d] = true
				result = append(result, d)
			}
		}
	}

	sort.Strings(result)
	return result, nil
}
