package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP lookup server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []server.Option{
				server.WithLogger(logger.Named("http")),
				// Two upstream calls plus slack.
				server.WithRequestTimeout(3 * cfg.Upstream.Timeout),
			}
			if a.metrics != nil {
				opts = append(opts, server.WithMetrics(a.metrics))
			}
			srv := server.New(cfg.Listen, a.lookups, opts...)

			logger.Info("starting dexcache",
				zap.String("version", version),
				zap.String("config", *configPath),
				zap.Int("cache_capacity", cfg.Cache.Capacity),
				zap.Duration("cache_ttl", cfg.Cache.TTL))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
