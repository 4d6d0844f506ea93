package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersHSTSWithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, req)

	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler, mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	RequestLog(logger)(teapot).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/mcp")
}

func TestClientLimiterBlocksExcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewClientLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 2})
	h := l.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestClientLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewClientLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 1, TrustedProxies: []string{"10.0.0.1"}})
	h := l.Middleware(okHandler)

	codes := make([]int, 0, 3)
	var body string
	for i, spoofed := range []string{"6.6.6.1", "6.6.6.2", "6.6.6.3"} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", spoofed+", 198.51.100.4")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i == 2 {
			body = rec.Body.String()
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 429, 429}, codes)
	assert.Contains(t, body, domain.ErrRateLimit.Error())
	assert.Equal(t, 1, l.size())
}

func TestClientLimiterSeparatesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewClientLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 1})

	assert.True(t, l.Allow("198.51.100.1"))
	assert.False(t, l.Allow("198.51.100.1"))
	assert.True(t, l.Allow("198.51.100.2"))
}

func TestClientLimiterEvictsIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewClientLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 1, IdleTTL: time.Minute})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	l.Allow("198.51.100.1")
	require.Equal(t, 1, l.size())

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	l.evictIdle()
	assert.Equal(t, 0, l.size())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{"direct", "203.0.113.9:1234", nil, nil, "203.0.113.9"},
		{"ipv6 direct", "[2001:db8::1]:443", nil, nil, "2001:db8::1"},
		{"spoofed header ignored", "203.0.113.9:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, nil, "203.0.113.9"},
		{"untrusted peer", "203.0.113.9:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, []string{"10.0.0.1"}, "203.0.113.9"},
		{"trusted xff", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, []string{"10.0.0.1"}, "1.2.3.4"},
		{"trusted real ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": " 5.6.7.8 "}, []string{"10.0.0.1"}, "5.6.7.8"},
		{"trusted no headers", "10.0.0.1:1234", nil, []string{"10.0.0.1"}, "10.0.0.1"},
		{"spoofed leftmost entry", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4"}, []string{"10.0.0.1"}, "1.2.3.4"},
		{"proxy chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.0.0.2"}, []string{"10.0.0.1", "10.0.0.2"}, "1.2.3.4"},
		{"all hops trusted", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "10.0.0.2"}, []string{"10.0.0.1", "10.0.0.2"}, "10.0.0.2"},
		{"garbage hop", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, not-an-ip"}, []string{"10.0.0.1"}, "10.0.0.1"},
		{"xff wins over real ip", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"}, []string{"10.0.0.1"}, "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}
