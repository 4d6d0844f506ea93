package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"webscout/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(flags cliFlags) error {
	cfgPath := configPath(flags)
	cfg, cfgErr := loadConfig(flags)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Search backend", Fn: checkSearchBackend},
		{Name: "Fetch guard", Fn: checkFetchGuard},
		{Name: "Document index", Fn: checkDocumentIndex},
	}

	fmt.Println("webscout doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile reports whether the config file exists and validates.
// A missing file is only a warning: defaults and env overrides still apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the listed fields in " + cfgPath + " or the WEBSCOUT_* environment",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: "config loaded from " + cfgPath}
	}
}

// checkSearchBackend pings the configured search endpoint.
func checkSearchBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	endpoint := cfg.Search.Endpoint
	if cfg.Search.Backend == "searxng" {
		endpoint = strings.TrimRight(cfg.Search.SearXNGURL, "/") + "/healthz"
	}
	return reachable(cfg.Search.Backend, endpoint, "Check network access to "+endpoint)
}

func checkFetchGuard(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if !cfg.Fetch.BlockPrivateNetworks {
		return CheckResult{
			Status:  StatusWarn,
			Message: "fetch_content_tool can reach private and loopback addresses",
			Fix:     "Set fetch.block_private_networks: true unless the server runs in an isolated network",
		}
	}
	return CheckResult{Status: StatusPass, Message: "private networks blocked for page fetches"}
}

// checkDocumentIndex verifies the doc_search_tool backend is reachable or launchable.
func checkDocumentIndex(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if !cfg.Docs.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled (doc_search_tool not registered)"}
	}
	if cfg.Docs.Transport == "stdio" {
		path, err := exec.LookPath(cfg.Docs.Command)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("command %q not found", cfg.Docs.Command),
				Fix:     "Install the document index server or fix docs.command",
			}
		}
		return CheckResult{Status: StatusPass, Message: "index command found at " + path}
	}
	return reachable("document index", cfg.Docs.URL, "Start the document index server at "+cfg.Docs.URL)
}

// reachable treats any HTTP response as reachable; only transport errors fail.
func reachable(name, endpoint, fix string) CheckResult {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid URL %q", endpoint)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     fix,
		}
	}
	resp.Body.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (HTTP %d, latency: %dms)", name, resp.StatusCode, latency.Milliseconds()),
	}
}
