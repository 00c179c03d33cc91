package extract

import (
	"strings"
)

// Rule probes one field path of a parsed YAML mapping.
type Rule struct {
	Name string
	Path []string
}

// CaptionRules are evaluated in order; the first non-empty string wins.
var CaptionRules = []Rule{
	{Name: "text_processing.corrected_text", Path: []string{"text_processing", "corrected_text"}},
	{Name: "translation.translated_text", Path: []string{"translation", "translated_text"}},
	{Name: "text_processing.translated_text", Path: []string{"text_processing", "translated_text"}},
	{Name: "ocr.full_text", Path: []string{"ocr", "full_text"}},
	{Name: "full_text", Path: []string{"full_text"}},
}

// PostRules pick the body of a mapping entry in a story page's posts list.
var PostRules = []Rule{
	{Name: "posts.content", Path: []string{"content"}},
	{Name: "posts.text", Path: []string{"text"}},
	{Name: "posts.body", Path: []string{"body"}},
}

// Apply returns the trimmed string at the rule's path, if there is one.
func (r Rule) Apply(v any) (string, bool) {
	for _, key := range r.Path {
		m, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		if v, ok = m[key]; !ok {
			return "", false
		}
	}

	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// FirstMatch evaluates rules in order against v.
func FirstMatch(rules []Rule, v any) (text, rule string, ok bool) {
	for _, r := range rules {
		if s, ok := r.Apply(v); ok {
			return s, r.Name, true
		}
	}
	return "", "", false
}
