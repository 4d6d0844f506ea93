package tool

import (
	"context"
	"fmt"
	"log/slog"

	"webscout/internal/domain"
)

// Messages returned when the top-result pipeline cannot produce page text.
const (
	NoWebResultsMessage    = "Error: No search results were found for this query."
	WebSearchFailedMessage = "Error: Unable to search web at this time"
)

// SearchService composes a search backend and a page fetcher into the
// operations the tools expose. It never returns an error: search failures
// fail open to an empty list and fetch failures become text.
type SearchService struct {
	backend SearchBackend
	fetcher PageFetcher
	logger  *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(backend SearchBackend, fetcher PageFetcher, logger *slog.Logger) *SearchService {
	return &SearchService{backend: backend, fetcher: fetcher, logger: logger}
}

// Results runs a search and returns at most maxResults results. Backend
// errors are logged and yield an empty slice.
func (s *SearchService) Results(ctx context.Context, query string, maxResults int) []domain.SearchResult {
	results, err := s.backend.Search(ctx, query, maxResults)
	if err != nil {
		s.logger.Warn("web search failed",
			"backend", s.backend.Name(),
			"query", query,
			"error", err,
			"code", domain.ErrorCodeOf(err),
		)
		return []domain.SearchResult{}
	}
	return results
}

// Search returns the formatted result list for query.
func (s *SearchService) Search(ctx context.Context, query string, maxResults int) (out string) {
	defer s.recoverAs(query, &out)
	return FormatResults(s.Results(ctx, query, maxResults))
}

// FetchTop searches for query and returns the cleaned text of the first hit.
// The fetcher is not called when the search comes back empty.
func (s *SearchService) FetchTop(ctx context.Context, query string) (out string) {
	defer s.recoverAs(query, &out)

	results := s.Results(ctx, query, 1)
	if len(results) == 0 {
		return NoWebResultsMessage
	}
	top := results[0]
	s.logger.Debug("fetching top result", "query", query, "url", top.Link)
	return DescribeFetchResult(s.fetcher.Fetch(ctx, top.Link))
}

// recoverAs turns a panic in a search call into WebSearchFailedMessage.
// It must be deferred directly.
func (s *SearchService) recoverAs(query string, out *string) {
	if r := recover(); r != nil {
		s.logger.Error("web search panicked", "query", query, "panic", fmt.Sprint(r))
		*out = WebSearchFailedMessage
	}
}
