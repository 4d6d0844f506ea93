package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
)

func testFetchConfig() config.FetchConfig {
	cfg := config.Defaults().Fetch
	cfg.RequestsPerMinute = 1000
	cfg.BlockPrivateNetworks = false
	return cfg
}

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractText(t *testing.T) {
	page := `<html>
<head><title>Effective Go</title><style>body { color: red }</style><script>var tracking = 1;</script></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a> <a href="/doc">Docs</a></nav>
  <main>
    <h1>Effective   Go</h1>
    <p>Go is a new
       language.</p>
    <noscript>Enable JavaScript</noscript>
  </main>
  <footer>Copyright</footer>
</body></html>`

	text, err := ExtractText(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Effective Go Effective Go Go is a new language. Enable JavaScript", text)
	for _, noise := range []string{"color: red", "tracking", "Site header", "Home", "Copyright"} {
		assert.NotContains(t, text, noise)
	}
}

func TestTruncateText(t *testing.T) {
	short := strings.Repeat("a", 8000)
	assert.Equal(t, short, truncateText(short, 8000, 6000), "exactly at threshold is kept")

	long := strings.Repeat("b", 8001)
	got := truncateText(long, 8000, 6000)
	assert.Equal(t, strings.Repeat("b", 6000)+TruncationMarker, got)

	// Counted in characters, not bytes.
	wide := strings.Repeat("é", 8001)
	got = truncateText(wide, 8000, 6000)
	assert.Equal(t, 6000+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(got))
}

func TestWebFetcherSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `<html><body><nav>menu</nav><article>Hello   <b>world</b></article></body></html>`)
	}))
	defer srv.Close()

	f := NewWebFetcher(testFetchConfig(), newTestLogger())
	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, config.DefaultFetchUserAgent, gotUA)
}

func TestWebFetcherTruncatesLongPages(t *testing.T) {
	srv := serveHTML(t, "<p>"+strings.Repeat("word ", 2000)+"</p>")
	f := NewWebFetcher(testFetchConfig(), newTestLogger())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(text, TruncationMarker))
	assert.Equal(t, 6000, utf8.RuneCountInString(strings.TrimSuffix(text, TruncationMarker)))
}

func TestWebFetcherFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>moved here</p>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	text, err := NewWebFetcher(testFetchConfig(), newTestLogger()).Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, "moved here", text)
}

func TestWebFetcherRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxRedirects = 2
	_, err := NewWebFetcher(cfg, newTestLogger()).Fetch(context.Background(), srv.URL+"/")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Contains(t, err.Error(), "stopped after 2 redirects")
}

func TestWebFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebFetcher(testFetchConfig(), newTestLogger()).Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, domain.CodeFetchFailed, domain.ErrorCodeOf(err))
	assert.Equal(t,
		fmt.Sprintf("Error: Could not access the webpage (HTTP 404 Not Found for url '%s/missing')", srv.URL),
		DescribeFetchError(err))
}

func TestWebFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testFetchConfig()
	cfg.Timeout = 50 * time.Millisecond
	_, err := NewWebFetcher(cfg, newTestLogger()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.CodeFetchTimeout, domain.ErrorCodeOf(err))
	assert.Equal(t, "Error: The request timed out while trying to fetch the webpage.", DescribeFetchError(err))
}

func TestWebFetcherInvalidURL(t *testing.T) {
	f := NewWebFetcher(testFetchConfig(), newTestLogger())
	_, err := f.Fetch(context.Background(), "ftp://example.com/file")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, strings.HasPrefix(DescribeFetchError(err), "Error: Could not access the webpage ("))
	assert.Zero(t, f.limiter.InWindow(), "rejected URLs do not consume quota")
}

func TestWebFetcherBlocksPrivateNetworks(t *testing.T) {
	srv := serveHTML(t, "<p>internal</p>")

	cfg := testFetchConfig()
	cfg.BlockPrivateNetworks = true
	f := NewWebFetcher(cfg, newTestLogger())

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
	assert.Contains(t, DescribeFetchError(err), "Error: Could not access the webpage (")

	_, err = f.Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")
	assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
}

func TestWebFetcherBlocksRedirectToPrivate(t *testing.T) {
	f := NewWebFetcher(testFetchConfig(), newTestLogger())
	f.blockPrivate = true
	f.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp := htmlResponse(http.StatusFound, "")
		resp.Header.Set("Location", "http://10.0.0.5/admin")
		resp.Request = req
		return resp, nil
	})

	_, err := f.Fetch(context.Background(), "https://public.example/")
	assert.ErrorIs(t, err, domain.ErrSSRFBlocked)
}

func TestDescribeFetchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", domain.NewSubSystemError("fetch", "op", domain.ErrTimeout, "deadline"), FetchTimeoutMessage},
		{"provider", domain.NewSubSystemError("fetch", "op", domain.ErrProviderError, "HTTP 500 Internal Server Error for url 'https://x'"),
			"Error: Could not access the webpage (HTTP 500 Internal Server Error for url 'https://x')"},
		{"other", domain.NewSubSystemError("fetch", "op", domain.ErrToolFailure, "parse html: bad"),
			"Error: An unexpected error occurred while fetching the webpage (parse html: bad)"},
		{"quota wait hit deadline", domain.NewSubSystemError("fetch", "op", domain.ErrRateLimit, "no slot").WithCause(context.DeadlineExceeded),
			FetchTimeoutMessage},
		{"plain", errors.New("boom"), "Error: An unexpected error occurred while fetching the webpage (boom)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeFetchError(tt.err))
		})
	}
}

func TestDescribeFetchResult(t *testing.T) {
	assert.Equal(t, "page text", DescribeFetchResult("page text", nil))
	assert.Equal(t, FetchTimeoutMessage, DescribeFetchResult("", domain.ErrTimeout))
}
