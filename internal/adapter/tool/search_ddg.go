package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
	"webscout/internal/infra/tracer"
)

// ResultParser turns a provider's results page into ranked results.
// Markup it does not recognise yields fewer (possibly zero) results, not an error.
type ResultParser interface {
	Parse(r io.Reader, maxResults int) ([]domain.SearchResult, error)
}

// DuckDuckGoBackend scrapes the DuckDuckGo HTML endpoint. It has no API
// contract, so all markup assumptions live in its ResultParser.
type DuckDuckGoBackend struct {
	client    *http.Client
	endpoint  string
	userAgent string
	timeout   time.Duration
	maxBody   int64
	limiter   *RateLimiter
	parser    ResultParser
	logger    *slog.Logger
}

// NewDuckDuckGoBackend creates a backend with its own rate limiter.
func NewDuckDuckGoBackend(cfg config.SearchConfig, logger *slog.Logger) *DuckDuckGoBackend {
	return &DuckDuckGoBackend{
		client:    &http.Client{},
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		maxBody:   cfg.MaxBodyBytes,
		limiter:   NewPerMinuteLimiter(cfg.RequestsPerMinute),
		parser:    NewHTMLResultParser(cfg.Markup),
		logger:    logger,
	}
}

func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	const op = "DuckDuckGo.Search"

	ctx, span := tracer.StartSpan(ctx, "search.duckduckgo",
		trace.WithAttributes(
			tracer.StringAttr("search.query", query),
			tracer.IntAttr("search.max_results", maxResults),
		),
	)
	defer span.End()

	results, err := b.search(ctx, op, query, maxResults)
	span.SetAttributes(tracer.IntAttr("ratelimit.in_window", b.limiter.InWindow()))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.IntAttr("search.results", len(results)))
	tracer.SetOK(span)
	b.logger.Debug("duckduckgo search completed", "query", query, "results", len(results))
	return results, nil
}

func (b *DuckDuckGoBackend) search(ctx context.Context, op, query string, maxResults int) ([]domain.SearchResult, error) {
	if err := b.limiter.Acquire(ctx); err != nil {
		return nil, classifyRequestError("search", op, err)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("kl", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.NewSubSystemError("search", op, domain.ErrInvalidInput, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, classifyRequestError("search", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("search", op, resp, b.endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody))
	if err != nil {
		return nil, classifyRequestError("search", op, err)
	}

	results, err := b.parser.Parse(bytes.NewReader(body), maxResults)
	if err != nil {
		return nil, domain.NewSubSystemError("search", op, domain.ErrToolFailure, err.Error())
	}
	return results, nil
}

// HTMLResultParser extracts results from DuckDuckGo-style HTML using goquery.
type HTMLResultParser struct {
	markup config.MarkupConfig
}

// NewHTMLResultParser creates a parser for the given markup description.
func NewHTMLResultParser(markup config.MarkupConfig) *HTMLResultParser {
	if markup.LinkSelector == "" {
		markup.LinkSelector = "a"
	}
	return &HTMLResultParser{markup: markup}
}

// Parse walks result containers in document order and stops once maxResults
// have been accepted. Positions are dense over accepted results.
func (p *HTMLResultParser) Parse(r io.Reader, maxResults int) ([]domain.SearchResult, error) {
	if maxResults < 1 {
		return []domain.SearchResult{}, nil
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	results := make([]domain.SearchResult, 0, maxResults)
	doc.Find(p.markup.ResultSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		res, ok := p.extract(s)
		if !ok {
			return true
		}
		res.Position = len(results) + 1
		results = append(results, res)
		return len(results) < maxResults
	})
	return results, nil
}

func (p *HTMLResultParser) extract(s *goquery.Selection) (domain.SearchResult, bool) {
	title := s.Find(p.markup.TitleSelector).First()
	if title.Length() == 0 {
		return domain.SearchResult{}, false
	}
	anchor := title.Find(p.markup.LinkSelector).First()
	if anchor.Length() == 0 {
		return domain.SearchResult{}, false
	}
	href, _ := anchor.Attr("href")
	if href == "" {
		return domain.SearchResult{}, false
	}
	if p.markup.AdMarker != "" && strings.Contains(href, p.markup.AdMarker) {
		return domain.SearchResult{}, false
	}
	link, ok := p.unwrapRedirect(href)
	if !ok {
		return domain.SearchResult{}, false
	}

	var snippet string
	if p.markup.SnippetSelector != "" {
		snippet = collapseSpace(s.Find(p.markup.SnippetSelector).First().Text())
	}

	return domain.SearchResult{
		Title:   collapseSpace(anchor.Text()),
		Link:    link,
		Snippet: snippet,
	}, true
}

// unwrapRedirect recovers the destination from a provider redirect link such
// as //duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc. Links that do not
// match the redirect prefix pass through unchanged. A matching link whose
// destination parameter is missing, empty or badly escaped is rejected.
func (p *HTMLResultParser) unwrapRedirect(href string) (string, bool) {
	prefix := p.markup.RedirectPrefix
	if prefix == "" {
		return href, true
	}

	candidate := href
	for _, scheme := range []string{"https:", "http:"} {
		if strings.HasPrefix(candidate, scheme+"//") {
			candidate = strings.TrimPrefix(candidate, scheme)
			break
		}
	}
	if !strings.HasPrefix(candidate, prefix) {
		return href, true
	}

	_, rawQuery, _ := strings.Cut(candidate, "?")
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key != p.markup.RedirectParam {
			continue
		}
		dest, err := url.PathUnescape(value)
		if err != nil || dest == "" {
			return "", false
		}
		return dest, true
	}
	return "", false
}

// collapseSpace replaces every whitespace run with a single space and trims.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
