package middleware

import (
	"path"
	"strings"
)

// matcher holds whitelist patterns. A pattern ending in "/**" matches its
// prefix and everything below it; other patterns use path.Match.
type matcher struct {
	exact    []string
	subtrees []string
}

func newMatcher(patterns []string) *matcher {
	m := &matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if base, ok := strings.CutSuffix(p, "/**"); ok {
			m.subtrees = append(m.subtrees, base)
			continue
		}
		m.exact = append(m.exact, p)
	}
	return m
}

func (m *matcher) match(p string) bool {
	if m == nil {
		return false
	}
	p = path.Clean("/" + p)
	for _, base := range m.subtrees {
		if base == "" {
			return true
		}
		for q := p; ; q = path.Dir(q) {
			if ok, _ := path.Match(base, q); ok {
				return true
			}
			if q == "/" {
				break
			}
		}
	}
	for _, pattern := range m.exact {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
