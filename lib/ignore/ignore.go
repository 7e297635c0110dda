// Package ignore compiles .dockerignore text into a matcher with
// gitignore semantics: glob patterns, `!` negation, trailing-slash
// directory rules, last match wins.
//
// A missing or malformed ignore file never fails a build. Both cases
// degrade to "ignore nothing".
package ignore

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the pattern file read from the context root.
const FileName = ".dockerignore"

// Spec is a compiled set of ignore rules.
type Spec struct {
	matcher  gitignore.Matcher
	patterns int
}

// Empty reports whether the spec carries no rules at all.
func (s *Spec) Empty() bool {
	return s == nil || s.patterns == 0
}

// Patterns returns the number of compiled rules.
func (s *Spec) Patterns() int {
	if s == nil {
		return 0
	}
	return s.patterns
}

// Parse compiles pattern text. Comment lines and blank lines are
// dropped. Input that is not valid UTF-8 is treated as malformed and
// yields an empty spec rather than an error.
func Parse(text string) *Spec {
	if !utf8.ValidString(text) {
		return &Spec{}
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(trimmed, nil))
	}

	return &Spec{
		matcher:  gitignore.NewMatcher(patterns),
		patterns: len(patterns),
	}
}

// Load reads and compiles the ignore file in dir. A missing file or a
// read failure yields an empty spec.
func Load(dir string) *Spec {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return &Spec{}
	}
	return Parse(string(data))
}

// Match reports whether the relative path is excluded from the build
// context. Rules are evaluated last-match-wins, so a later negation
// overrides an earlier exclusion.
func (s *Spec) Match(rel string, isDir bool) bool {
	if s.Empty() {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}
	return s.matcher.Match(strings.Split(rel, "/"), isDir)
}
