package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
	"webscout/internal/infra/tracer"
)

// mcpClient is the subset of the mcp-go client the retriever needs.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPRetriever implements domain.Retriever by calling a retrieval tool on an
// external document index that speaks MCP. The tool receives {query, k} and
// answers with a JSON array of {content, source, title} objects.
type MCPRetriever struct {
	client  mcpClient
	tool    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMCPRetriever connects to the index described by cfg, initializes the
// session and checks that the retrieval tool is offered.
func NewMCPRetriever(ctx context.Context, cfg config.DocsConfig, version string, logger *slog.Logger) (*MCPRetriever, error) {
	c, err := dialMCP(ctx, cfg)
	if err != nil {
		return nil, err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "webscout",
		Version: version,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}

	r, err := newMCPRetrieverWithClient(ctx, c, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	logger.Info("document index connected", "transport", cfg.Transport, "tool", cfg.Tool)
	return r, nil
}

func dialMCP(ctx context.Context, cfg config.DocsConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		c, err := mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		return c, nil
	case "http", "":
		t, err := transport.NewStreamableHTTP(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c := mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported docs transport %q", cfg.Transport)
	}
}

// newMCPRetrieverWithClient wires an already initialized client.
func newMCPRetrieverWithClient(ctx context.Context, c mcpClient, cfg config.DocsConfig, logger *slog.Logger) (*MCPRetriever, error) {
	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, domain.WrapOp("list tools", err)
	}
	found := false
	for _, t := range listed.Tools {
		if t.Name == cfg.Tool {
			found = true
			break
		}
	}
	if !found {
		return nil, domain.NewSubSystemError("docs", "MCPRetriever.Connect", domain.ErrNotFound,
			fmt.Sprintf("tool %q not offered by document index", cfg.Tool))
	}
	return &MCPRetriever{client: c, tool: cfg.Tool, timeout: cfg.Timeout, logger: logger}, nil
}

// Retrieve returns at most k documents most relevant to query.
func (r *MCPRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Document, error) {
	const op = "MCPRetriever.Retrieve"

	ctx, span := tracer.StartSpan(ctx, "docs.retrieve",
		trace.WithAttributes(
			tracer.StringAttr("docs.query", query),
			tracer.IntAttr("docs.k", k),
		),
	)
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = r.tool
	req.Params.Arguments = map[string]any{"query": query, "k": k}

	result, err := r.client.CallTool(ctx, req)
	if err != nil {
		err = classifyRetrieveError(op, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	text := extractMCPContent(result)
	if result.IsError {
		err := domain.NewSubSystemError("docs", op, domain.ErrProviderError, text)
		tracer.RecordError(span, err)
		return nil, err
	}

	docs, err := decodeDocuments(text)
	if err != nil {
		err = domain.NewSubSystemError("docs", op, domain.ErrProviderError, err.Error())
		tracer.RecordError(span, err)
		return nil, err
	}
	if k > 0 && len(docs) > k {
		docs = docs[:k]
	}

	span.SetAttributes(tracer.IntAttr("docs.hits", len(docs)))
	tracer.SetOK(span)
	r.logger.Debug("documents retrieved", "query", query, "hits", len(docs))
	return docs, nil
}

// Close shuts down the connection to the index.
func (r *MCPRetriever) Close() error {
	return r.client.Close()
}

func classifyRetrieveError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewSubSystemError("docs", op, domain.ErrTimeout, err.Error())
	}
	return domain.NewSubSystemError("docs", op, domain.ErrProviderError, err.Error())
}

// documentsSchema is the shape the index must return: an array of hits with
// string fields. Unknown fields are tolerated.
const documentsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "content": {"type": "string"},
      "source": {"type": ["string", "null"]},
      "title": {"type": ["string", "null"]}
    },
    "required": ["content"]
  }
}`

var compileDocumentsSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(documentsSchema))
})

// decodeDocuments accepts a JSON array of documents or an empty payload.
func decodeDocuments(text string) ([]domain.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.Document{}, nil
	}

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	schema, err := compileDocumentsSchema()
	if err != nil {
		return nil, fmt.Errorf("documents schema: %w", err)
	}
	if result := schema.Validate(raw); !result.IsValid() {
		return nil, fmt.Errorf("unexpected documents payload: %s", result.Error())
	}

	var docs []domain.Document
	if err := json.Unmarshal([]byte(text), &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// extractMCPContent joins the text parts of an MCP tool result. Non-text
// parts are marshaled to JSON.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// envSlice converts a map of env vars to KEY=VALUE pairs.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

var _ domain.Retriever = (*MCPRetriever)(nil)
