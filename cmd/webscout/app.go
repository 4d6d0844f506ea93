package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"webscout/internal/adapter/tool"
	"webscout/internal/infra/config"
)

// app holds the wired components shared by every command.
type app struct {
	Config   *config.Config
	Backend  tool.SearchBackend
	Fetcher  *tool.WebFetcher
	Service  *tool.SearchService
	Registry *tool.Registry

	closers []func() error
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	backend, err := tool.NewSearchBackend(cfg.Search, log)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	fetcher := tool.NewWebFetcher(cfg.Fetch, log)
	service := tool.NewSearchService(backend, fetcher, log)

	a := &app{
		Config:   cfg,
		Backend:  backend,
		Fetcher:  fetcher,
		Service:  service,
		Registry: tool.NewRegistry(),
		logger:   log,
	}

	if err := a.Registry.Register(
		tool.NewWebSearchTool(service, log),
		tool.NewWebResultsTool(service, cfg.Search.DefaultMaxResults, log),
		tool.NewFetchContentTool(fetcher, log),
	); err != nil {
		return nil, err
	}

	if cfg.Docs.Enabled {
		retriever, err := tool.NewMCPRetriever(ctx, cfg.Docs, version, log)
		if err != nil {
			return nil, fmt.Errorf("docs: %w", err)
		}
		a.closers = append(a.closers, retriever.Close)
		if err := a.Registry.Register(tool.NewDocSearchTool(retriever, cfg.Docs.TopK, log)); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Info("webscout ready",
		"search_backend", backend.Name(),
		"breaker", cfg.Search.Breaker.Enabled,
		"docs", cfg.Docs.Enabled,
		"tools", len(a.Registry.List()),
	)
	return a, nil
}

// Close releases external connections.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown error", "error", err)
		return err
	}
	return nil
}
