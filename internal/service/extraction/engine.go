// Package extraction resolves template fields against per-page document text.
// Resolution is rule-based and deterministic: the same text and template
// always produce bit-identical results.
package extraction

import (
	"regexp"
	"strings"

	"github.com/safeworkhq/compliance-backend/internal/domain/document"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
)

// Result maps every declared field id to its resolved value: a string for
// captured text, true/false for boolean fields, nil for unresolved non-boolean
// fields. Previews hold the text window each resolved value came from; they
// are diagnostic only and never persisted.
type Result struct {
	Values   map[string]any    `json:"values"`
	Previews map[string]string `json:"-"`
}

const previewLimit = 160

// Engine runs the per-field strategy chain. It is stateless and safe for
// concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Extract resolves every field of the template against the document content.
// Per-field resolution never fails; fields without a match resolve to nil
// (or false for boolean fields).
func (e *Engine) Extract(content *document.Content, tpl *template.Template) *Result {
	result := &Result{
		Values:   make(map[string]any, len(tpl.Fields)),
		Previews: make(map[string]string, len(tpl.Fields)),
	}

	for _, field := range tpl.Fields {
		scope := scopeFor(content, field.Hint)

		captured, matched := resolve(scope, field.Hint)

		switch {
		case field.Type == template.FieldTypeBoolean:
			// Presence detection only: a boolean field is exactly true or
			// false, never the matched substring.
			result.Values[field.ID] = matched
		case matched:
			result.Values[field.ID] = captured
		default:
			result.Values[field.ID] = nil
		}

		if matched {
			result.Previews[field.ID] = preview(captured)
		}
	}

	return result
}

// resolve runs the ordered strategy chain: regex first, keywords as fallback.
// First match wins at every level; there is no ranking among matches.
func resolve(scope string, hint template.ExtractionHint) (string, bool) {
	for _, s := range strategiesFor(hint) {
		if captured, ok := s.resolve(scope); ok {
			return captured, true
		}
	}
	return "", false
}

// strategy resolves a field value within a text scope. Additional strategies
// slot into the chain without restructuring resolve.
type strategy interface {
	resolve(scope string) (string, bool)
}

func strategiesFor(hint template.ExtractionHint) []strategy {
	var chain []strategy
	if hint.Regex != "" {
		// Template validation compiles the pattern at save time; a pattern
		// that fails here is skipped rather than aborting the field.
		if re, err := regexp.Compile("(?i)" + hint.Regex); err == nil {
			chain = append(chain, regexStrategy{re: re})
		}
	}
	if len(hint.Keywords) > 0 {
		if ks := newKeywordStrategy(hint.Keywords); len(ks.patterns) > 0 {
			chain = append(chain, ks)
		}
	}
	return chain
}

// regexStrategy captures the entire first matched span, case-insensitively.
type regexStrategy struct {
	re *regexp.Regexp
}

func (s regexStrategy) resolve(scope string) (string, bool) {
	loc := s.re.FindStringIndex(scope)
	if loc == nil {
		return "", false
	}
	return scope[loc[0]:loc[1]], true
}

// keywordStrategy tries each keyword in declared order and captures the rest
// of the matching line after the keyword and any separator characters. Each
// keyword is matched with a case-insensitive literal pattern so the match
// offsets are valid in the original line; case folds that change the UTF-8
// byte length must not shift the capture.
type keywordStrategy struct {
	patterns []*regexp.Regexp
}

func newKeywordStrategy(keywords []string) keywordStrategy {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		patterns = append(patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(keyword)))
	}
	return keywordStrategy{patterns: patterns}
}

func (s keywordStrategy) resolve(scope string) (string, bool) {
	lines := strings.Split(scope, "\n")
	for _, re := range s.patterns {
		for _, line := range lines {
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			rest := line[loc[1]:]
			return strings.TrimSpace(strings.TrimLeft(rest, " \t:-–")), true
		}
	}
	return "", false
}

// scopeFor narrows the search to one page when the hint names an in-range
// page; any other page value falls back to the full text in page order.
func scopeFor(content *document.Content, hint template.ExtractionHint) string {
	if hint.Page >= 1 && hint.Page <= len(content.Pages) {
		return content.Pages[hint.Page-1]
	}
	return content.FullText()
}

func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	// Cut on a rune boundary.
	cut := previewLimit
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
