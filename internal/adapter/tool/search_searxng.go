package tool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"webscout/internal/domain"
	"webscout/internal/infra/config"
)

// searxngResponse models the relevant portion of the SearXNG JSON response.
type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearXNGBackend searches the web via a self-hosted SearXNG instance's JSON API.
type SearXNGBackend struct {
	client      *http.Client
	instanceURL string
	timeout     time.Duration
	maxBody     int64
	limiter     *RateLimiter
	logger      *slog.Logger
}

// NewSearXNGBackend creates a search backend backed by a SearXNG instance.
func NewSearXNGBackend(cfg config.SearchConfig, logger *slog.Logger) *SearXNGBackend {
	return &SearXNGBackend{
		client:      &http.Client{},
		instanceURL: strings.TrimRight(cfg.SearXNGURL, "/"),
		timeout:     cfg.Timeout,
		maxBody:     cfg.MaxBodyBytes,
		limiter:     NewPerMinuteLimiter(cfg.RequestsPerMinute),
		logger:      logger,
	}
}

func (b *SearXNGBackend) Name() string { return "searxng" }

func (b *SearXNGBackend) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	const op = "SearXNG.Search"
	if maxResults < 1 {
		return []domain.SearchResult{}, nil
	}
	if err := b.limiter.Acquire(ctx); err != nil {
		return nil, classifyRequestError("search", op, err)
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	endpoint := b.instanceURL + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewSubSystemError("search", op, domain.ErrInvalidInput, err.Error())
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, classifyRequestError("search", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", op, resp, endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBody))
	if err != nil {
		return nil, classifyRequestError("search", op, err)
	}

	var searxResp searxngResponse
	if err := json.Unmarshal(body, &searxResp); err != nil {
		return nil, domain.NewSubSystemError("search", op, domain.ErrProviderError, "parse response: "+err.Error())
	}

	results := make([]domain.SearchResult, 0, min(maxResults, len(searxResp.Results)))
	for _, r := range searxResp.Results {
		if len(results) >= maxResults {
			break
		}
		if r.URL == "" {
			continue
		}
		results = append(results, domain.SearchResult{
			Title:    collapseSpace(r.Title),
			Link:     r.URL,
			Snippet:  collapseSpace(r.Content),
			Position: len(results) + 1,
		})
	}

	b.logger.Debug("searxng search completed", "query", query, "results", len(results))
	return results, nil
}
