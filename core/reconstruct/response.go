package reconstruct

import "strings"

// response holds the fenced blocks of a model answer.
type response struct {
	Markup      string
	HasMarkup   bool
	Styles      string
	HasStyles   bool
	MarkupNotes string // why the markup block was unusable, if it was
}

// parseResponse extracts the first ```html and ```css blocks of text.
// An html block must be closed. A css block may run to the end of the text,
// since it is usually the last thing the model writes.
func parseResponse(text string) response {
	var r response

	if body, closed, found := fenced(text, "html"); found {
		if closed {
			r.Markup, r.HasMarkup = strings.TrimSpace(body), true
		} else {
			r.MarkupNotes = "html block is not terminated"
		}
	} else {
		r.MarkupNotes = "no html block in response"
	}

	if body, _, found := fenced(text, "css"); found {
		r.Styles, r.HasStyles = strings.TrimSpace(body), true
	}
	return r
}

// fenced finds the first block opened by ```lang and returns its body.
func fenced(text, lang string) (body string, closed, found bool) {
	open := "```" + lang
	start := 0
	for {
		i := strings.Index(text[start:], open)
		if i < 0 {
			return "", false, false
		}
		i += start
		rest := text[i+len(open):]
		nl := strings.IndexByte(rest, '\n')
		// ```html must be followed by the end of the line, not ```htmlx.
		if nl < 0 || strings.TrimSpace(rest[:nl]) != "" {
			start = i + len(open)
			continue
		}
		rest = rest[nl+1:]
		end := strings.Index(rest, "```")
		if end < 0 {
			return rest, false, true
		}
		return rest[:end], true, true
	}
}
