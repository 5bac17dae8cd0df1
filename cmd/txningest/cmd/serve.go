package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txn-ingest/pkg/api"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	a, err := newApp(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := opts.cfg.Server
	server, err := api.NewServer(api.Deps{
		Ingester:   a.ingestor,
		Querier:    a.queries,
		Health:     a.store,
		Gatherer:   a.registry,
		Registerer: a.registry,
		Snapshot:   a.snapshot,
		Logger:     opts.logger,
	}, api.ServerConfig{
		Address:          srv.Addr,
		ReadTimeout:      srv.ReadTimeout,
		WriteTimeout:     srv.WriteTimeout,
		IdleTimeout:      srv.IdleTimeout,
		MaxUploadBytes:   srv.MaxUploadBytes,
		HealthTimeout:    opts.cfg.Store.Timeout,
		MetricsNamespace: opts.cfg.Metrics.Namespace,
	})
	if err != nil {
		return err
	}

	errc := server.Start()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	opts.logger.Info("shutting down", zap.Duration("timeout", srv.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}
