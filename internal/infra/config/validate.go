package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateSearch(cfg, ve)
	validateFetch(cfg, ve)
	validateDocs(cfg, ve)
	validateObservability(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	switch s.Transport {
	case "stdio":
		if s.MDNS.Enabled {
			ve.Add("server.mdns requires the http transport")
		}
		return
	case "http":
	default:
		ve.Add("server.transport %q is invalid (want http or stdio)", s.Transport)
		return
	}
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is invalid: %v", s.Addr, err)
	}
	if !strings.HasPrefix(s.Path, "/") {
		ve.Add("server.path must start with /")
	}
	if s.RequestsPerMin <= 0 {
		ve.Add("server.requests_per_min must be > 0")
	}
	if s.Burst <= 0 {
		ve.Add("server.burst must be > 0")
	}
	if s.MDNS.Enabled && s.MDNS.Instance == "" {
		ve.Add("server.mdns.instance is required when mdns is enabled")
	}
	for _, p := range s.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("server.trusted_proxies: %q is not an IP address", p)
		}
	}
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	switch s.Backend {
	case "duckduckgo":
		validateHTTPURL(ve, "search.endpoint", s.Endpoint)
		m := s.Markup
		if m.ResultSelector == "" || m.TitleSelector == "" || m.LinkSelector == "" {
			ve.Add("search.markup result, title and link selectors are required")
		}
		if m.RedirectPrefix != "" && m.RedirectParam == "" {
			ve.Add("search.markup.redirect_param is required when redirect_prefix is set")
		}
	case "searxng":
		validateHTTPURL(ve, "search.searxng_url", s.SearXNGURL)
	default:
		ve.Add("search.backend %q is invalid (want duckduckgo or searxng)", s.Backend)
	}
	if s.RequestsPerMinute <= 0 {
		ve.Add("search.requests_per_minute must be > 0")
	}
	if s.Timeout <= 0 {
		ve.Add("search.timeout must be > 0")
	}
	if s.DefaultMaxResults < 1 || s.DefaultMaxResults > 20 {
		ve.Add("search.default_max_results must be between 1 and 20")
	}
	if s.MaxBodyBytes <= 0 {
		ve.Add("search.max_body_bytes must be > 0")
	}
	if s.Breaker.Enabled {
		if s.Breaker.MaxFailures == 0 {
			ve.Add("search.breaker.max_failures must be > 0")
		}
		if s.Breaker.Timeout <= 0 {
			ve.Add("search.breaker.timeout must be > 0")
		}
	}
}

func validateFetch(cfg *Config, ve *ValidationError) {
	f := cfg.Fetch
	if f.RequestsPerMinute <= 0 {
		ve.Add("fetch.requests_per_minute must be > 0")
	}
	if f.Timeout <= 0 {
		ve.Add("fetch.timeout must be > 0")
	}
	if f.MaxBodyBytes <= 0 {
		ve.Add("fetch.max_body_bytes must be > 0")
	}
	if f.MaxRedirects < 0 {
		ve.Add("fetch.max_redirects must be >= 0")
	}
	if f.TruncateLength <= 0 {
		ve.Add("fetch.truncate_length must be > 0")
	}
	if f.TruncateThreshold < f.TruncateLength {
		ve.Add("fetch.truncate_threshold must be >= fetch.truncate_length")
	}
}

func validateDocs(cfg *Config, ve *ValidationError) {
	d := cfg.Docs
	if !d.Enabled {
		return
	}
	switch d.Transport {
	case "http":
		validateHTTPURL(ve, "docs.url", d.URL)
	case "stdio":
		if d.Command == "" {
			ve.Add("docs.command is required for stdio transport")
		}
	default:
		ve.Add("docs.transport %q is invalid (want http or stdio)", d.Transport)
	}
	if d.Tool == "" {
		ve.Add("docs.tool is required")
	}
	if d.TopK <= 0 {
		ve.Add("docs.top_k must be > 0")
	}
	if d.Timeout <= 0 {
		ve.Add("docs.timeout must be > 0")
	}
}

func validateObservability(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
	if cfg.Tracer.Enabled {
		switch cfg.Tracer.Exporter {
		case "stdout", "noop", "":
		default:
			ve.Add("tracer.exporter %q is invalid (want stdout or noop)", cfg.Tracer.Exporter)
		}
		if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
			ve.Add("tracer.sample_ratio must be between 0 and 1")
		}
	}
}

func validateHTTPURL(ve *ValidationError, field, raw string) {
	if raw == "" {
		ve.Add("%s is required", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("%s %q must be an absolute http(s) URL", field, raw)
	}
}
