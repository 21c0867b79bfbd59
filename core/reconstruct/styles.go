package reconstruct

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/gaurav-prasanna/pageclone/core/extract"
	"golang.org/x/net/html"
)

// groupingRules are at-rules whose block holds ordinary style rules.
var groupingRules = []string{"@media", "@supports", "@layer", "@container", "@document", "@scope"}

// dynamicPseudo matches pseudo-classes that depend on user interaction.
// They are removed before matching so such rules count as applicable.
var dynamicPseudo = regexp.MustCompile(`(?i):(hover|focus-within|focus-visible|focus|active|visited|target)\b`)

// styleFilter keeps the rules of a style document that can affect a given
// markup tree. Rules it cannot evaluate are kept.
type styleFilter struct {
	root  *html.Node
	cache map[string]bool
}

func newStyleFilter(markup string) *styleFilter {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return &styleFilter{root: root, cache: make(map[string]bool)}
}

// filter returns the rules of css that apply to the markup, in order.
func (f *styleFilter) filter(css string) []string {
	rules, _ := extract.SplitRules(css)
	var kept []string
	for _, rule := range rules {
		if r, ok := f.keep(rule); ok {
			kept = append(kept, r)
		}
	}
	return kept
}

func (f *styleFilter) keep(rule string) (string, bool) {
	prelude := extract.Prelude(rule)
	if prelude == "" {
		return rule, strings.TrimSpace(rule) != ""
	}
	if !strings.HasPrefix(prelude, "@") {
		return rule, f.matches(prelude)
	}

	lower := strings.ToLower(prelude)
	for _, name := range groupingRules {
		if !strings.HasPrefix(lower, name) {
			continue
		}
		open := strings.IndexByte(rule, '{')
		end := strings.LastIndexByte(rule, '}')
		if open < 0 || end <= open {
			return rule, true
		}
		inner := f.filter(rule[open+1 : end])
		if len(inner) == 0 {
			return "", false
		}
		return rule[:open+1] + strings.Join(inner, "") + "}", true
	}
	// @font-face, @keyframes, @import and the like are referenced by name.
	return rule, true
}

func (f *styleFilter) matches(selectors string) bool {
	if hit, ok := f.cache[selectors]; ok {
		return hit
	}
	hit := true
	if group, err := cascadia.ParseGroupWithPseudoElements(dynamicPseudo.ReplaceAllString(selectors, "")); err == nil {
		hit = false
		for _, sel := range group {
			if cascadia.Query(f.root, sel) != nil {
				hit = true
				break
			}
		}
	}
	f.cache[selectors] = hit
	return hit
}

// boundStyles returns css unchanged when it fits in limit bytes. Otherwise
// it keeps only the rules that apply to markup and cuts the result at the
// last complete rule that fits.
func boundStyles(css, markup string, limit int) (out string, filtered, truncated bool) {
	if limit <= 0 || len(css) <= limit {
		return css, false, false
	}

	var rules []string
	if f := newStyleFilter(markup); f != nil {
		rules = f.filter(css)
		filtered = true
	} else {
		rules, _ = extract.SplitRules(css)
	}

	var b strings.Builder
	for _, rule := range rules {
		if b.Len()+len(rule) > limit {
			truncated = true
			break
		}
		b.WriteString(rule)
	}
	return b.String(), filtered, truncated
}
