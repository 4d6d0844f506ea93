package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
	"webscout/internal/infra/tracer"
	"webscout/internal/security"
)

// TruncationMarker is appended to page text cut down to the configured length.
const TruncationMarker = "... [content truncated]"

// noiseSelector matches elements dropped before text extraction.
const noiseSelector = "script, style, nav, header, footer"

// PageFetcher retrieves a page and returns its readable text.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// WebFetcher downloads pages and reduces them to whitespace-normalized text.
type WebFetcher struct {
	client            *http.Client
	userAgent         string
	timeout           time.Duration
	maxBody           int64
	truncateThreshold int
	truncateLength    int
	blockPrivate      bool
	limiter           *RateLimiter
	logger            *slog.Logger
}

// NewWebFetcher creates a fetcher with its own rate limiter. When
// cfg.BlockPrivateNetworks is set, connections to private and reserved
// addresses are refused, including after redirects.
func NewWebFetcher(cfg config.FetchConfig, logger *slog.Logger) *WebFetcher {
	f := &WebFetcher{
		userAgent:         cfg.UserAgent,
		timeout:           cfg.Timeout,
		maxBody:           cfg.MaxBodyBytes,
		truncateThreshold: cfg.TruncateThreshold,
		truncateLength:    cfg.TruncateLength,
		blockPrivate:      cfg.BlockPrivateNetworks,
		limiter:           NewPerMinuteLimiter(cfg.RequestsPerMinute),
		logger:            logger,
	}

	client := &http.Client{CheckRedirect: f.checkRedirect(cfg.MaxRedirects)}
	if f.blockPrivate {
		client.Transport = security.NewSSRFSafeTransport()
	}
	f.client = client
	return f
}

func (f *WebFetcher) checkRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if f.blockPrivate {
			return security.ValidateURL(req.URL.String())
		}
		return nil
	}
}

// Fetch downloads rawURL and returns its visible text. Failures are
// classified as domain.ErrTimeout, domain.ErrProviderError, domain.ErrRateLimit,
// domain.ErrSSRFBlocked, domain.ErrInvalidInput or domain.ErrToolFailure;
// DescribeFetchError renders them for the caller.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "fetch.page",
		trace.WithAttributes(tracer.StringAttr("fetch.url", rawURL)),
	)
	defer span.End()

	text, err := f.fetch(ctx, rawURL)
	span.SetAttributes(tracer.IntAttr("ratelimit.in_window", f.limiter.InWindow()))
	if err != nil {
		tracer.RecordError(span, err)
		f.logger.Warn("page fetch failed", "url", rawURL, "error", err, "code", domain.ErrorCodeOf(err))
		return "", err
	}
	span.SetAttributes(tracer.IntAttr("fetch.chars", utf8.RuneCountInString(text)))
	tracer.SetOK(span)
	return text, nil
}

func (f *WebFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	const op = "WebFetcher.Fetch"

	if err := f.validate(rawURL); err != nil {
		return "", err
	}
	if err := f.limiter.Acquire(ctx); err != nil {
		return "", classifyRequestError("fetch", op, err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", domain.NewSubSystemError("fetch", op, domain.ErrInvalidInput, err.Error())
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyRequestError("fetch", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("fetch", op, resp, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", classifyRequestError("fetch", op, err)
	}

	text, err := ExtractText(bytes.NewReader(body))
	if err != nil {
		return "", domain.NewSubSystemError("fetch", op, domain.ErrToolFailure, err.Error())
	}
	return truncateText(text, f.truncateThreshold, f.truncateLength), nil
}

func (f *WebFetcher) validate(rawURL string) error {
	const op = "WebFetcher.Fetch"
	if f.blockPrivate {
		if err := security.ValidateURL(rawURL); err != nil {
			return domain.NewSubSystemError("fetch", op, domain.ErrSSRFBlocked, domain.ErrorDetail(err))
		}
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.NewSubSystemError("fetch", op, domain.ErrInvalidInput, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.NewSubSystemError("fetch", op, domain.ErrInvalidInput,
			fmt.Sprintf("no connection adapters were found for '%s'", rawURL))
	}
	return nil
}

// ExtractText parses an HTML document, drops script, style and page chrome
// elements, and returns the remaining text with every whitespace run
// collapsed to a single space.
func ExtractText(page io.Reader) (string, error) {
	// Scripting is off so <noscript> content is parsed as markup and kept.
	root, err := html.ParseWithOptions(page, html.ParseOptionEnableScripting(false))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Find(noiseSelector).Remove()
	return collapseSpace(doc.Text()), nil
}

// truncateText cuts s to length runes plus TruncationMarker once it is longer
// than threshold runes.
func truncateText(s string, threshold, length int) string {
	if utf8.RuneCountInString(s) <= threshold {
		return s
	}
	runes := []rune(s)
	return string(runes[:length]) + TruncationMarker
}

// Messages returned to the caller in place of page text.
const (
	FetchTimeoutMessage = "Error: The request timed out while trying to fetch the webpage."
	fetchAccessFormat   = "Error: Could not access the webpage (%s)"
	fetchUnknownFormat  = "Error: An unexpected error occurred while fetching the webpage (%s)"
)

// DescribeFetchError converts a Fetch error into the text handed to the model.
func DescribeFetchError(err error) string {
	switch {
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FetchTimeoutMessage
	case errors.Is(err, domain.ErrProviderError),
		errors.Is(err, domain.ErrSSRFBlocked),
		errors.Is(err, domain.ErrInvalidInput):
		return fmt.Sprintf(fetchAccessFormat, domain.ErrorDetail(err))
	default:
		return fmt.Sprintf(fetchUnknownFormat, domain.ErrorDetail(err))
	}
}

// DescribeFetchResult returns text on success and the rendered error otherwise.
func DescribeFetchResult(text string, err error) string {
	if err != nil {
		return DescribeFetchError(err)
	}
	return text
}
