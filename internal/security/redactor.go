// Package security keeps secrets out of logs and child environments and maps
// the configured security level onto agent CLI permissions.
package security

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// minLiteralLen avoids redacting short values such as "yes" or "1".
const minLiteralLen = 6

// Redactor replaces secret values in strings with a placeholder. It combines
// regex patterns for known token formats with literal values taken from the
// live settings. All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// SetLiterals replaces the literal secret set, typically after a settings
// reload. Empty and very short values are ignored; longer values are matched
// first so that overlapping secrets are fully hidden.
func (r *Redactor) SetLiterals(secrets ...string) {
	literals := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minLiteralLen {
			literals = append(literals, s)
		}
	}
	sort.Slice(literals, func(i, j int) bool { return len(literals[i]) > len(literals[j]) })

	r.mu.Lock()
	r.literals = literals
	r.mu.Unlock()
}

// Redact replaces all known secret patterns and literal values in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// DefaultPatterns returns compiled regex patterns for the token formats the
// daemon handles: Anthropic and OpenAI-style keys, Telegram bot tokens and
// bearer headers.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		// Telegram: <bot id>:<35 char secret>
		regexp.MustCompile(`\b[0-9]{6,12}:[a-zA-Z0-9_\-]{30,}\b`),
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]{16,}=*`),
	}
}
