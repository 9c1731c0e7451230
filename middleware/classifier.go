package middleware

import (
	"regexp"
	"strings"
)

// Classifier decides whether a request path belongs to a protected area.
type Classifier struct {
	pattern *regexp.Regexp
}

// NewClassifier matches /<prefix> and /<xx>/<prefix>, with or without a
// trailing subpath, for every prefix. Any two-letter first segment is
// accepted, not only configured locales, so an unknown locale never makes a
// protected path public.
func NewClassifier(prefixes []string) *Classifier {
	quoted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	if len(quoted) == 0 {
		return &Classifier{}
	}
	return &Classifier{
		pattern: regexp.MustCompile(`^/(?:[a-z]{2}/)?(?:` + strings.Join(quoted, "|") + `)(?:/|$)`),
	}
}

// Protected reports whether path requires a session.
func (c *Classifier) Protected(path string) bool {
	if c == nil || c.pattern == nil {
		return false
	}
	return c.pattern.MatchString(path)
}
