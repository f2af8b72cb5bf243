// Package wikilink extracts [[Title]] and [[Title|Label]] references from Markdown text.
//
// Extraction is a pure function of its input. Code spans and fenced code
// blocks are masked before matching so link-like text inside code is never
// reported; masking keeps byte offsets intact.
package wikilink

import (
	"regexp"
	"strings"
)

var linkRe = regexp.MustCompile(`\[\[([^\[\]\n]*)\]\]`)

// Occurrence is one wiki link found in a note body.
type Occurrence struct {
	Title string `json:"title"`
	Label string `json:"label"`
	// Start is the byte offset of the opening "[[" in the original body.
	Start int `json:"start"`
	// Position is the 0-based ordinal among the links extracted from the body.
	Position int `json:"position"`
}

// Extract returns the wiki links of body in order of appearance.
// Malformed markup and empty titles are skipped silently.
func Extract(body string) []Occurrence {
	if !strings.Contains(body, "[[") {
		return nil
	}
	masked := Mask(body)

	var out []Occurrence
	for _, m := range linkRe.FindAllStringSubmatchIndex(masked, -1) {
		inner := body[m[2]:m[3]]
		title, label, _ := strings.Cut(inner, "|")
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		label = strings.TrimSpace(label)
		if label == "" {
			label = title
		}
		out = append(out, Occurrence{
			Title:    title,
			Label:    label,
			Start:    m[0],
			Position: len(out),
		})
	}
	return out
}
