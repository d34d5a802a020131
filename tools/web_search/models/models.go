package models

import "strings"

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Line renders the result as "Title: Snippet", or the bare snippet when
// there is no title. Results without a snippet render as "".
func (r Result) Line() string {
	snippet := strings.TrimSpace(r.Snippet)
	if snippet == "" {
		return ""
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return snippet
	}
	return title + ": " + snippet
}

// Combine joins results into a single evidence block separated by blank lines.
func Combine(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if line := r.Line(); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n\n")
}
