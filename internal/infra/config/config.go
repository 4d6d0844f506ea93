package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Browser-like user agents sent to the search provider and to fetched pages.
const (
	DefaultSearchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultFetchUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Config is the top-level application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Search SearchConfig `yaml:"search"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Docs   DocsConfig   `yaml:"docs"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// ServerConfig controls how the MCP server is exposed.
type ServerConfig struct {
	Transport       string        `yaml:"transport"` // "http" or "stdio"
	Addr            string        `yaml:"addr"`
	Path            string        `yaml:"path"`
	RequestsPerMin  int           `yaml:"requests_per_min"`
	Burst           int           `yaml:"burst"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MDNS            MDNSConfig    `yaml:"mdns"`
}

// MDNSConfig announces the HTTP endpoint on the local network. It only takes
// effect in binaries built with the mdns tag.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// SearchConfig configures the web search backend.
type SearchConfig struct {
	Backend           string        `yaml:"backend"` // "duckduckgo" or "searxng"
	Endpoint          string        `yaml:"endpoint"`
	SearXNGURL        string        `yaml:"searxng_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	DefaultMaxResults int           `yaml:"default_max_results"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	Markup            MarkupConfig  `yaml:"markup"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// MarkupConfig describes where results live in the provider's HTML page and
// how its outbound links are wrapped.
type MarkupConfig struct {
	ResultSelector  string `yaml:"result_selector"`
	TitleSelector   string `yaml:"title_selector"`
	LinkSelector    string `yaml:"link_selector"`
	SnippetSelector string `yaml:"snippet_selector"`
	AdMarker        string `yaml:"ad_marker"`
	RedirectPrefix  string `yaml:"redirect_prefix"`
	RedirectParam   string `yaml:"redirect_param"`
}

// BreakerConfig configures the optional circuit breaker around the search backend.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// FetchConfig configures the page content fetcher.
type FetchConfig struct {
	RequestsPerMinute    int           `yaml:"requests_per_minute"`
	Timeout              time.Duration `yaml:"timeout"`
	UserAgent            string        `yaml:"user_agent"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes"`
	MaxRedirects         int           `yaml:"max_redirects"`
	TruncateThreshold    int           `yaml:"truncate_threshold"`
	TruncateLength       int           `yaml:"truncate_length"`
	BlockPrivateNetworks bool          `yaml:"block_private_networks"`
}

// DocsConfig points doc_search_tool at an external document index served over MCP.
type DocsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Transport string            `yaml:"transport"` // "http" or "stdio"
	URL       string            `yaml:"url"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	Tool      string            `yaml:"tool"`
	TopK      int               `yaml:"top_k"`
	Timeout   time.Duration     `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"` // root span sampling ratio, 1 samples everything
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:       "http",
			Addr:            ":8000",
			Path:            "/mcp",
			RequestsPerMin:  120,
			Burst:           20,
			ShutdownTimeout: 10 * time.Second,
			MDNS:            MDNSConfig{Instance: "webscout"},
		},
		Search: SearchConfig{
			Backend:           "duckduckgo",
			Endpoint:          "https://html.duckduckgo.com/html",
			RequestsPerMinute: 30,
			Timeout:           30 * time.Second,
			UserAgent:         DefaultSearchUserAgent,
			DefaultMaxResults: 5,
			MaxBodyBytes:      2 * 1024 * 1024,
			Markup: MarkupConfig{
				ResultSelector:  ".result",
				TitleSelector:   ".result__title",
				LinkSelector:    "a",
				SnippetSelector: ".result__snippet",
				AdMarker:        "y.js",
				RedirectPrefix:  "//duckduckgo.com/l/?",
				RedirectParam:   "uddg",
			},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     60 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Fetch: FetchConfig{
			RequestsPerMinute:    20,
			Timeout:              30 * time.Second,
			UserAgent:            DefaultFetchUserAgent,
			MaxBodyBytes:         5 * 1024 * 1024,
			MaxRedirects:         10,
			TruncateThreshold:    8000,
			TruncateLength:       6000,
			BlockPrivateNetworks: true,
		},
		Docs: DocsConfig{
			Transport: "http",
			Tool:      "retrieve",
			TopK:      3,
			Timeout:   30 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and validates.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps WEBSCOUT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBSCOUT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WEBSCOUT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WEBSCOUT_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("WEBSCOUT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WEBSCOUT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	if v := os.Getenv("WEBSCOUT_SERVER_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("WEBSCOUT_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WEBSCOUT_SERVER_MDNS_ENABLED"); v != "" {
		cfg.Server.MDNS.Enabled = v == "true"
	}
	if v := os.Getenv("WEBSCOUT_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = splitAndTrim(v, ",")
	}

	if v := os.Getenv("WEBSCOUT_SEARCH_BACKEND"); v != "" {
		cfg.Search.Backend = v
	}
	if v := os.Getenv("WEBSCOUT_SEARCH_ENDPOINT"); v != "" {
		cfg.Search.Endpoint = v
	}
	if v := os.Getenv("WEBSCOUT_SEARCH_SEARXNG_URL"); v != "" {
		cfg.Search.SearXNGURL = v
	}
	if v := os.Getenv("WEBSCOUT_SEARCH_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("WEBSCOUT_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.Timeout = d
		}
	}
	if v := os.Getenv("WEBSCOUT_SEARCH_BREAKER_ENABLED"); v != "" {
		cfg.Search.Breaker.Enabled = v == "true"
	}

	if v := os.Getenv("WEBSCOUT_FETCH_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("WEBSCOUT_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("WEBSCOUT_FETCH_BLOCK_PRIVATE_NETWORKS"); v == "false" {
		cfg.Fetch.BlockPrivateNetworks = false
	}

	if v := os.Getenv("WEBSCOUT_DOCS_ENABLED"); v != "" {
		cfg.Docs.Enabled = v == "true"
	}
	if v := os.Getenv("WEBSCOUT_DOCS_TRANSPORT"); v != "" {
		cfg.Docs.Transport = v
	}
	if v := os.Getenv("WEBSCOUT_DOCS_URL"); v != "" {
		cfg.Docs.URL = v
	}
	if v := os.Getenv("WEBSCOUT_DOCS_TOOL"); v != "" {
		cfg.Docs.Tool = v
	}
	if v := os.Getenv("WEBSCOUT_DOCS_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Docs.TopK = n
		}
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
