// Package mcpserver exposes the tool registry to MCP clients over streamable
// HTTP or stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
	"webscout/internal/infra/middleware"
)

// Server adapts a domain.ToolExecutor to the MCP protocol.
type Server struct {
	mcp     *server.MCPServer
	cfg     config.ServerConfig
	version string
	logger  *slog.Logger

	mu        sync.Mutex
	boundAddr string
	ready     chan struct{}
}

// New registers every tool in tools with a fresh MCP server.
func New(tools domain.ToolExecutor, cfg config.ServerConfig, version string, logger *slog.Logger) *Server {
	s := server.NewMCPServer("webscout", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range tools.List() {
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), toolSchema(t)), handler(t, logger))
		logger.Debug("mcp tool registered", "tool", t.Name())
	}
	return &Server{mcp: s, cfg: cfg, version: version, logger: logger, ready: make(chan struct{})}
}

func toolSchema(t domain.Tool) json.RawMessage {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}

// handler runs a tool for one MCP call. Tool failures are reported inside the
// result with isError set, never as protocol errors.
func handler(t domain.Tool, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := t.Execute(ctx, params)
		if err != nil {
			logger.Error("tool returned error", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		logger.Info("tool call", "tool", t.Name(), "call_id", res.ToolCallID, "is_error", res.IsError)
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Handler returns the HTTP handler: the MCP endpoint at cfg.Path plus
// /healthz, behind security headers, request logging and per-client rate limiting.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
		server.WithEndpointPath(s.cfg.Path),
	))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	limiter := middleware.NewClientLimiter(ctx, middleware.RateLimitConfig{
		RequestsPerMin: s.cfg.RequestsPerMin,
		Burst:          s.cfg.Burst,
		TrustedProxies: s.cfg.TrustedProxies,
	})
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.RequestLog(s.logger),
		limiter.Middleware,
	)
}

// ServeHTTP listens on cfg.Addr and serves until ctx is cancelled, then shuts
// down gracefully within cfg.ShutdownTimeout.
func (s *Server) ServeHTTP(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen: %w", err)
	}
	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()
	close(s.ready)

	httpSrv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("mcp server started", "transport", "http", "addr", s.BoundAddr(), "path", s.cfg.Path)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(listener) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("mcp server shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	return nil
}

// Ready is closed once ServeHTTP has bound its listener.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the address ServeHTTP bound to. Only valid after Ready.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// ServeStdio speaks MCP over in and out until ctx is cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server started", "transport", "stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// advertisePort waits for the HTTP listener and returns its port.
func (s *Server) advertisePort(ctx context.Context) (int, error) {
	select {
	case <-s.Ready():
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	_, portStr, err := net.SplitHostPort(s.BoundAddr())
	if err != nil {
		return 0, fmt.Errorf("bound addr: %w", err)
	}
	return strconv.Atoi(portStr)
}

// advertiseTXT builds the DNS-SD TXT records describing the endpoint.
func (s *Server) advertiseTXT() []string {
	return []string{"path=" + s.cfg.Path, "version=" + s.version, "transport=streamable-http"}
}
