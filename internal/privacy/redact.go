// Package privacy scrubs post text before it is written to the archive.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	redactedPlaceholder = "[REDACTED]"

	// ExcerptRunes is how much text the archive keeps when full text is off.
	ExcerptRunes = 80
)

// Redactor replaces every match of its patterns with [REDACTED].
// A nil Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns. It fails on the first invalid one.
func New(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Excerpt flattens whitespace and cuts text to at most n runes, marking a
// cut with "...".
func Excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
