package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
)

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	// Search returns at most maxResults results in the provider's order.
	// Failures are returned as classified errors; callers decide whether to fail open.
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error)
	// Name returns the backend identifier (e.g. "duckduckgo").
	Name() string
}

// NewSearchBackend builds the configured backend, wrapped in a circuit
// breaker when enabled.
func NewSearchBackend(cfg config.SearchConfig, logger *slog.Logger) (SearchBackend, error) {
	var backend SearchBackend
	switch cfg.Backend {
	case "duckduckgo", "":
		backend = NewDuckDuckGoBackend(cfg, logger)
	case "searxng":
		backend = NewSearXNGBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
	if cfg.Breaker.Enabled {
		backend = NewBreakerBackend(backend, cfg.Breaker, logger)
	}
	return backend, nil
}

// classifyRequestError maps an outbound request failure onto the domain
// taxonomy: timeouts, cancellation, and everything else as a provider error.
// Context errors stay in the chain so callers can tell a caller giving up
// from a provider failing.
func classifyRequestError(subsystem, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, domain.ErrRateLimit):
		return domain.NewSubSystemError(subsystem, op, domain.ErrRateLimit, domain.ErrorDetail(err)).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewSubSystemError(subsystem, op, domain.ErrTimeout, err.Error()).WithCause(err)
	case errors.Is(err, context.Canceled):
		return domain.NewSubSystemError(subsystem, op, domain.ErrToolFailure, "request canceled").WithCause(context.Canceled)
	case errors.Is(err, domain.ErrSSRFBlocked):
		return domain.NewSubSystemError(subsystem, op, domain.ErrSSRFBlocked, domain.ErrorDetail(err))
	default:
		return domain.NewSubSystemError(subsystem, op, domain.ErrProviderError, err.Error())
	}
}

// statusError describes a non-2xx response and drains a little of its body so
// the connection can be reused. The final URL after redirects is reported
// when known.
func statusError(subsystem, op string, resp *http.Response, rawURL string) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.Request != nil && resp.Request.URL != nil {
		rawURL = resp.Request.URL.String()
	}
	return domain.NewSubSystemError(subsystem, op, domain.ErrProviderError,
		fmt.Sprintf("HTTP %d %s for url '%s'", resp.StatusCode, http.StatusText(resp.StatusCode), rawURL))
}
