package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/cache/lru"
	"github.com/pario-ai/dexcache/pkg/config"
	"github.com/pario-ai/dexcache/pkg/logging"
	"github.com/pario-ai/dexcache/pkg/lookup"
	"github.com/pario-ai/dexcache/pkg/metrics"
	"github.com/pario-ai/dexcache/pkg/models"
	"github.com/pario-ai/dexcache/pkg/species"
	"github.com/pario-ai/dexcache/pkg/telemetry"
	"github.com/pario-ai/dexcache/pkg/tracker"
	"github.com/pario-ai/dexcache/pkg/translate"
)

// app holds the components shared by the serving commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	lookups *lookup.Orchestrator
	history *tracker.SQLiteTracker
	metrics *metrics.Collector

	closers []func(context.Context) error
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	shutdown, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	opts := []lookup.Option{
		lookup.WithUpstreamTimeout(cfg.Upstream.Timeout),
		lookup.WithLogger(logger.Named("lookup")),
	}

	if cfg.History.Enabled {
		tr, err := tracker.New(cfg.DBPath,
			tracker.WithRetention(cfg.History.Retention),
			tracker.WithLogger(logger.Named("history")),
		)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init history: %w", err)
		}
		a.history = tr
		a.closers = append(a.closers, func(context.Context) error { return tr.Close() })
		opts = append(opts, lookup.WithObserver(tr))
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		opts = append(opts, lookup.WithObserver(a.metrics))
	}

	speciesClient := species.New(cfg.Species.URL, cfg.Upstream.TargetLanguage,
		species.WithLogger(logger.Named("species")))
	dialectClient := translate.New(cfg.Dialect,
		translate.WithLogger(logger.Named("translate")))
	cache := lru.New[models.LookupResult](cfg.Cache.Capacity, cfg.Cache.TTL)

	a.lookups = lookup.New(speciesClient, dialectClient, cache, opts...)
	if a.metrics != nil {
		a.metrics.RegisterCache(cfg.Metrics.Namespace, a.lookups.CacheStats)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
