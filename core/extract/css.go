package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core/urls"
)

// cssRefPattern matches @import statements (groups 1-4) and url() tokens
// (groups 5-7). Imports come first so their url() is not rewritten twice.
var cssRefPattern = regexp.MustCompile(
	`(?i)@import\s+(?:url\(\s*["']?([^"')]*)["']?\s*\)|"([^"]*)"|'([^']*)')([^;{}]*);?` +
		`|url\(\s*(?:"([^"]*)"|'([^']*)'|([^)"'\s]*))\s*\)`)

// RewriteURLs resolves every url() and @import reference in css against
// base. Unusable url() references become none; unusable imports are removed.
func RewriteURLs(css string, base *url.URL) string {
	return cssRefPattern.ReplaceAllStringFunc(css, func(match string) string {
		groups := cssRefPattern.FindStringSubmatch(match)
		if strings.HasPrefix(strings.ToLower(match), "@import") {
			ref := firstNonEmpty(groups[1], groups[2], groups[3])
			resolved, ok := urls.Resolve(base, ref)
			if !ok || resolved == "" {
				return ""
			}
			return `@import url("` + quoteURL(resolved) + `")` + groups[4] + ";"
		}

		ref := firstNonEmpty(groups[5], groups[6], groups[7])
		if ref == "" {
			return match
		}
		resolved, ok := urls.Resolve(base, ref)
		if !ok {
			return "none"
		}
		return `url("` + quoteURL(resolved) + `")`
	})
}

// importStatement matches one complete @import statement.
var importStatement = regexp.MustCompile(
	`(?is)^@import\s+(?:url\(\s*["']?([^"')]*)["']?\s*\)|"([^"]*)"|'([^']*)')\s*([^;{}]*?)\s*;?$`)

// ParseImport splits a top-level @import statement into its reference and
// its conditions (layer, supports and media list). ok is false for any
// other statement.
func ParseImport(statement string) (ref, conditions string, ok bool) {
	groups := importStatement.FindStringSubmatch(strings.TrimSpace(stripComments(statement)))
	if groups == nil {
		return "", "", false
	}
	return firstNonEmpty(groups[1], groups[2], groups[3]), groups[4], true
}

func quoteURL(u string) string {
	return strings.NewReplacer(`"`, "%22", "\n", "", "\r", "", `\`, "%5C").Replace(u)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// scanner walks CSS text tracking block depth while skipping strings and
// comments.
type scanner struct {
	src   string
	pos   int
	depth int
	quote byte
	inCmt bool
}

// next advances one byte and reports the structural byte seen ('{', '}',
// ';') or 0.
func (s *scanner) next() byte {
	c := s.src[s.pos]
	s.pos++
	switch {
	case s.inCmt:
		if c == '*' && s.pos < len(s.src) && s.src[s.pos] == '/' {
			s.pos++
			s.inCmt = false
		}
	case s.quote != 0:
		if c == '\\' && s.pos < len(s.src) {
			s.pos++
		} else if c == s.quote || c == '\n' {
			s.quote = 0
		}
	case c == '/' && s.pos < len(s.src) && s.src[s.pos] == '*':
		s.pos++
		s.inCmt = true
	case c == '"' || c == '\'':
		s.quote = c
	case c == '{':
		s.depth++
		return c
	case c == '}':
		s.depth--
		return c
	case c == ';':
		return c
	}
	return 0
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

// Depth returns the block depth at the end of css, or -1 when a closing
// brace appears without a matching opening brace.
func Depth(css string) int {
	s := &scanner{src: css}
	for !s.done() {
		s.next()
		if s.depth < 0 {
			return -1
		}
	}
	return s.depth
}

// Balanced reports whether every block in css is closed and no string or
// comment is left open.
func Balanced(css string) bool {
	s := &scanner{src: css}
	for !s.done() {
		s.next()
		if s.depth < 0 {
			return false
		}
	}
	return s.depth == 0 && !s.inCmt
}

// SplitRules splits css into its top-level rules and statements in order.
// Text after the last complete rule is returned as rest.
func SplitRules(css string) (rules []string, rest string) {
	s := &scanner{src: css}
	start := 0
	for !s.done() {
		switch s.next() {
		case '}':
			if s.depth == 0 {
				rules = append(rules, css[start:s.pos])
				start = s.pos
			} else if s.depth < 0 {
				return rules, css[start:]
			}
		case ';':
			if s.depth == 0 {
				rules = append(rules, css[start:s.pos])
				start = s.pos
			}
		}
	}
	return rules, css[start:]
}

// Prelude returns the part of a rule before its block, trimmed.
func Prelude(rule string) string {
	if i := strings.IndexByte(rule, '{'); i >= 0 {
		rule = rule[:i]
	}
	return strings.TrimSpace(stripComments(rule))
}

func stripComments(s string) string {
	for {
		i := strings.Index(s, "/*")
		if i < 0 {
			return s
		}
		j := strings.Index(s[i+2:], "*/")
		if j < 0 {
			return s[:i]
		}
		s = s[:i] + s[i+2+j+2:]
	}
}
