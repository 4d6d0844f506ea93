package tool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"webscout/internal/domain"
)

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},

		{"timeout sentinel", domain.ErrTimeout, true},
		{"provider sentinel", domain.ErrProviderError, true},
		{"rate limit sentinel", domain.ErrRateLimit, true},
		{"wrapped twice", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", domain.ErrTimeout)), true},
		{"search outage", domain.NewSubSystemError("search", "DuckDuckGo.Search", domain.ErrProviderError, "HTTP 502"), true},

		{"tool not found", domain.ErrToolNotFound, false},
		{"invalid input", domain.NewDomainError("WebSearchTool", domain.ErrInvalidInput, "query must not be empty"), false},
		{"docs disabled", domain.NewSubSystemError("docs", "op", domain.ErrDisabled, "docs off"), false},
		{"parse failure", domain.ErrToolFailure, false},
		{"ssrf with transient text", domain.NewDomainError("SafeDialer", domain.ErrSSRFBlocked, "connection refused to 10.0.0.1"), false},
		{"ssrf wrapped as provider", fmt.Errorf("%w: %w", domain.ErrProviderError, domain.ErrSSRFBlocked), false},

		{"refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), true},
		{"reset", errors.New("read tcp 10.0.0.1:443: connection reset by peer"), true},
		{"dns", errors.New("dial tcp: lookup html.duckduckgo.com: no such host"), true},
		{"short body", errors.New("unexpected EOF"), true},
		{"tls timeout", errors.New("net/http: TLS handshake timeout"), true},
		{"deadline text", errors.New("context deadline exceeded"), true},
		{"eagain", errors.New("resource temporarily unavailable"), true},
		{"503 text", errors.New("HTTP 503: Service Unavailable"), true},
		{"502 text", errors.New("HTTP 502 Bad Gateway"), true},
		{"429 text", errors.New("HTTP 429 Too Many Requests"), true},

		{"404 text", errors.New("page not found"), false},
		{"permission", errors.New("permission denied"), false},
		{"empty message", errors.New(""), false},
		{"unknown", errors.New("something completely unexpected happened"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyToolError(tt.err))
		})
	}
}

func FuzzClassifyToolError(f *testing.F) {
	for _, s := range []string{
		"connection refused",
		"HTTP 429 Too Many Requests for url 'https://html.duckduckgo.com/html'",
		"no connection adapters were found for 'ftp://x'",
		"",
	} {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, msg string) {
		_ = classifyToolError(errors.New(msg))
		if classifyToolError(domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked, msg)) {
			t.Fatalf("blocked URL classified retryable: %q", msg)
		}
		if !classifyToolError(domain.NewSubSystemError("fetch", "WebFetcher.Fetch", domain.ErrTimeout, msg)) {
			t.Fatalf("timeout classified permanent: %q", msg)
		}
	})
}
