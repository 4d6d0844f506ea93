package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

type queryParams struct {
	Query string `json:"query"`
}

// WebSearchTool searches the web and returns the cleaned text of the top hit.
type WebSearchTool struct {
	service *SearchService
	logger  *slog.Logger
}

// NewWebSearchTool creates the web_search_tool.
func NewWebSearchTool(service *SearchService, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{service: service, logger: logger}
}

func (t *WebSearchTool) Name() string { return "web_search_tool" }
func (t *WebSearchTool) Description() string {
	return "Search the web for current information and return the text content of the most relevant page."
}

func (t *WebSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "The search query"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_search_tool", t.logger, params,
		func(ctx context.Context, span trace.Span, p queryParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, domain.NewDomainError("WebSearchTool.Execute", domain.ErrInvalidInput, "query must not be empty")
			}
			span.SetAttributes(tracer.StringAttr("tool.query", p.Query))
			return t.service.FetchTop(ctx, p.Query), nil
		},
	)
}

// WebResultsTool returns the formatted result list without fetching pages.
type WebResultsTool struct {
	service    *SearchService
	defaultMax int
	logger     *slog.Logger
}

// NewWebResultsTool creates the web_results_tool. defaultMax applies when the
// caller omits max_results.
func NewWebResultsTool(service *SearchService, defaultMax int, logger *slog.Logger) *WebResultsTool {
	if defaultMax < 1 || defaultMax > maxMaxResults {
		defaultMax = defaultMaxResults
	}
	return &WebResultsTool{service: service, defaultMax: defaultMax, logger: logger}
}

func (t *WebResultsTool) Name() string { return "web_results_tool" }
func (t *WebResultsTool) Description() string {
	return "Search the web and return a numbered list of result titles, URLs and summaries."
}

func (t *WebResultsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(fmt.Sprintf(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "The search query"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": %d, "description": "Number of results (default: %d)"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`, maxMaxResults, t.defaultMax)),
	}
}

type webResultsParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *WebResultsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.web_results_tool", t.logger, params,
		func(ctx context.Context, span trace.Span, p webResultsParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return nil, domain.NewDomainError("WebResultsTool.Execute", domain.ErrInvalidInput, "query must not be empty")
			}
			if p.MaxResults <= 0 {
				p.MaxResults = t.defaultMax
			}
			p.MaxResults = min(p.MaxResults, maxMaxResults)

			span.SetAttributes(
				tracer.StringAttr("tool.query", p.Query),
				tracer.IntAttr("tool.max_results", p.MaxResults),
			)
			return t.service.Search(ctx, p.Query, p.MaxResults), nil
		},
	)
}

// FetchContentTool returns the cleaned text of a single page.
type FetchContentTool struct {
	fetcher PageFetcher
	logger  *slog.Logger
}

// NewFetchContentTool creates the fetch_content_tool.
func NewFetchContentTool(fetcher PageFetcher, logger *slog.Logger) *FetchContentTool {
	return &FetchContentTool{fetcher: fetcher, logger: logger}
}

func (t *FetchContentTool) Name() string { return "fetch_content_tool" }
func (t *FetchContentTool) Description() string {
	return "Fetch a web page and return its readable text with scripts, styles and navigation removed."
}

func (t *FetchContentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1, "description": "Absolute http(s) URL of the page"}
			},
			"required": ["url"],
			"additionalProperties": false
		}`),
	}
}

type fetchContentParams struct {
	URL string `json:"url"`
}

func (t *FetchContentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fetch_content_tool", t.logger, params,
		func(ctx context.Context, span trace.Span, p fetchContentParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("tool.url", p.URL))
			text, err := t.fetcher.Fetch(ctx, p.URL)
			if err != nil {
				return ErrorTextResult(DescribeFetchError(err), err), nil
			}
			return text, nil
		},
	)
}
