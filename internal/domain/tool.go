package domain

import (
	"context"
	"encoding/json"
)

// Tool is one callable capability exposed to MCP clients. Execute reports
// tool-level failures inside the ToolResult; a returned error means the call
// could not be attempted at all.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolSchema advertises a tool. Parameters is a JSON Schema object.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult carries the text handed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"` // ULID assigned per call
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	// IsRetryable marks transient failures (timeouts, provider outages).
	IsRetryable bool `json:"is_retryable,omitempty"`
}

// ToolExecutor resolves tools by name.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	List() []Tool
}
