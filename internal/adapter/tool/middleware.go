package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

// Execute is the standard tool pipeline: assign a call ID, start a span, parse
// params, run the handler, format the result.
//
// The handler returns one of:
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (*domain.ToolResult, nil): returned as-is
//   - (any other value, nil): JSON-marshaled into the ToolResult
//   - (nil, error): turned into an error ToolResult and logged
//
// Execute itself never returns a non-nil error; every failure becomes text.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	callID := ulid.Make().String()
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(
			tracer.StringAttr("tool.name", spanName),
			tracer.StringAttr("tool.call_id", callID),
		),
	)
	defer span.End()

	start := time.Now()
	log := logger.With("tool", spanName, "call_id", callID)

	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		tracer.RecordError(span, err)
		return &domain.ToolResult{ToolCallID: callID, IsError: true, Content: fmt.Sprintf("invalid params: %v", err)}, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		log.Warn("tool call failed", "error", err, "code", domain.ErrorCodeOf(err))

		retryable := classifyToolError(err)
		content := err.Error()
		if retryable {
			content += " (transient error, may succeed on retry)"
		}
		return &domain.ToolResult{ToolCallID: callID, IsError: true, IsRetryable: retryable, Content: content}, nil
	}

	res := formatResult(span, result)
	res.ToolCallID = callID
	log.Debug("tool call completed", "duration", time.Since(start), "is_error", res.IsError, "chars", len(res.Content))
	return res, nil
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) *domain.ToolResult {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{IsError: true, Content: fmt.Sprintf("failed to format response: %v", err)}
		}
		tracer.SetOK(span)
		return &domain.ToolResult{Content: string(data)}
	}
}

// ErrorTextResult creates an error ToolResult whose content is already
// suitable for the caller, flagging it retryable when err is transient.
func ErrorTextResult(content string, err error) *domain.ToolResult {
	return &domain.ToolResult{Content: content, IsError: true, IsRetryable: classifyToolError(err)}
}
