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
	NoDocumentsMessage     = "No relevant documents were found for your query."
	DocSearchFailedMessage = "Error: Unable to search documents at this time"

	documentSeparator = "\n\n---\n\n"
	unknownTitle      = "unknown title"
	unknownSource     = "unknown source"
)

// DocSearchTool answers queries from an external document index.
type DocSearchTool struct {
	retriever domain.Retriever
	k         int
	logger    *slog.Logger
}

// NewDocSearchTool creates the doc_search_tool returning up to k documents.
func NewDocSearchTool(retriever domain.Retriever, k int, logger *slog.Logger) *DocSearchTool {
	if k < 1 {
		k = 3
	}
	return &DocSearchTool{retriever: retriever, k: k, logger: logger}
}

func (t *DocSearchTool) Name() string { return "doc_search_tool" }
func (t *DocSearchTool) Description() string {
	return "Retrieves the most relevant information from the knowledge base. It returns the matched content along with metadata (title and source path)."
}

func (t *DocSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "minLength": 1, "description": "What to look up in the knowledge base"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	}
}

func (t *DocSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.doc_search_tool", t.logger, params,
		func(ctx context.Context, span trace.Span, p queryParams) (any, error) {
			query := strings.TrimSpace(p.Query)
			span.SetAttributes(tracer.StringAttr("tool.query", query))

			docs, err := t.retriever.Retrieve(ctx, query, t.k)
			if err != nil {
				t.logger.Error("document search failed", "query", query, "error", err, "code", domain.ErrorCodeOf(err))
				return ErrorTextResult(DocSearchFailedMessage, err), nil
			}
			span.SetAttributes(tracer.IntAttr("tool.hits", len(docs)))
			return FormatDocuments(docs), nil
		},
	)
}

// FormatDocuments renders retrieved documents with their title and source.
func FormatDocuments(docs []domain.Document) string {
	if len(docs) == 0 {
		return NoDocumentsMessage
	}
	entries := make([]string, 0, len(docs))
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = unknownTitle
		}
		source := d.Source
		if source == "" {
			source = unknownSource
		}
		entries = append(entries, fmt.Sprintf("📄 **Title:** %s\n📂 **Source:** %s\n\n%s", title, source, d.Content))
	}
	return strings.Join(entries, documentSeparator)
}
