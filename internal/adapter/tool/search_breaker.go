package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
)

// BreakerBackend wraps a SearchBackend with a circuit breaker. After
// MaxFailures consecutive failures the provider is not contacted until
// Timeout has passed; a single trial request then decides whether to close again.
type BreakerBackend struct {
	inner   SearchBackend
	breaker *gobreaker.CircuitBreaker[[]domain.SearchResult]
	logger  *slog.Logger
}

// NewBreakerBackend wraps inner. Zero fields in cfg fall back to the defaults.
func NewBreakerBackend(inner SearchBackend, cfg config.BreakerConfig, logger *slog.Logger) *BreakerBackend {
	defaults := config.Defaults().Search.Breaker
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaults.MaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaults.Interval
	}

	cb := gobreaker.NewCircuitBreaker[[]domain.SearchResult](gobreaker.Settings{
		Name:        "search:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A caller giving up, or our own quota running out, says nothing
		// about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrRateLimit)
		},
	})

	return &BreakerBackend{inner: inner, breaker: cb, logger: logger}
}

func (b *BreakerBackend) Name() string { return b.inner.Name() }

// State reports the breaker's current state.
func (b *BreakerBackend) State() gobreaker.State { return b.breaker.State() }

func (b *BreakerBackend) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	results, err := b.breaker.Execute(func() ([]domain.SearchResult, error) {
		return b.inner.Search(ctx, query, maxResults)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewSubSystemError("search", "Breaker.Search", domain.ErrProviderError,
			fmt.Sprintf("backend %q circuit open", b.inner.Name()))
	}
	return results, err
}
