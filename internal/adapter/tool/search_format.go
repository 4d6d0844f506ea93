package tool

import (
	"fmt"
	"strings"

	"webscout/internal/domain"
)

// NoResultsMessage is returned in place of an empty result list. DuckDuckGo
// answers automated traffic with an empty page, so the text points at both causes.
const NoResultsMessage = "No results were found for your search query. This could be due to DuckDuckGo's bot detection or the query returned no matches. Please try rephrasing your search or try again in a few minutes."

// FormatResults renders results as a numbered plain-text list for a language model.
func FormatResults(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	lines := make([]string, 0, 1+4*len(results))
	lines = append(lines, fmt.Sprintf("Found %d search results:\n", len(results)))
	for _, r := range results {
		lines = append(lines,
			fmt.Sprintf("%d. %s", r.Position, r.Title),
			"   URL: "+r.Link,
			"   Summary: "+r.Snippet,
			"",
		)
	}
	return strings.Join(lines, "\n")
}
