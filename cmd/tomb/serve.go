package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tombstone/internal/archive"
	"github.com/alfredjeanlab/tombstone/internal/config"
	"github.com/alfredjeanlab/tombstone/internal/events"
	"github.com/alfredjeanlab/tombstone/internal/registry"
	"github.com/alfredjeanlab/tombstone/internal/server"
	"github.com/alfredjeanlab/tombstone/internal/softdelete"
	"github.com/alfredjeanlab/tombstone/internal/store"
	"github.com/alfredjeanlab/tombstone/internal/store/memory"
	"github.com/alfredjeanlab/tombstone/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the tombstone HTTP and gRPC servers",
	GroupID:           "system",
	PersistentPreRunE: skipClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		reg, err := loadRegistry(cfg, logger)
		if err != nil {
			st.Close()
			return err
		}

		// Events go to SSE clients always and to NATS when configured.
		hub := server.NewEventHub()
		publishers := []events.Publisher{hub}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publishers = append(publishers, pub)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("NATS events disabled (TOMBSTONE_NATS_URL not set)")
		}
		publisher := events.NewMultiPublisher(publishers...)

		svcOpts := []softdelete.Option{
			softdelete.WithPublisher(publisher),
			softdelete.WithLogger(logger),
		}
		if cfg.ArchiveS3Bucket != "" {
			dest, err := archive.NewS3Destination(cmd.Context(), cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
			if err != nil {
				publisher.Close()
				st.Close()
				return err
			}
			svcOpts = append(svcOpts, softdelete.WithArchiver(archive.New(dest, cfg.ArchiveS3Prefix, logger)))
			logger.Info("purge archive enabled", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
		}

		svc := softdelete.New(st, reg, softdelete.Options{
			MaxDepth:         cfg.MaxDepth,
			StopOnFirstError: cfg.StopOnFirstError,
			ConflictRetries:  cfg.ConflictRetries,
			PageSize:         cfg.PageSize,
		}, svcOpts...)

		srv := server.New(svc, st, hub, logger)
		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var purger *softdelete.Purger
		if cfg.PurgeEnabled() {
			purger = softdelete.NewPurger(svc, nil, cfg.Retention, cfg.PurgeInterval, logger)
			purger.Start()
			logger.Info("purger started", "retention", cfg.Retention, "interval", cfg.PurgeInterval)
		}

		if cfg.AuthToken == "" {
			logger.Warn("authentication disabled (TOMBSTONE_AUTH_TOKEN not set)")
		}
		logger.Info("tombstone server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"relationships", len(reg.All()),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if purger != nil {
			purger.Stop()
			logger.Info("purger stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore connects to Postgres, or falls back to an in-memory store when
// no database URL is configured.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("using in-memory store (TOMBSTONE_DATABASE_URL not set); data is lost on exit")
		return memory.New(), nil
	}
	return postgres.New(cfg.DatabaseURL)
}

// loadRegistry reads the relationship file. Without one the registry is
// empty and soft deletes never cascade.
func loadRegistry(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	if cfg.Relationships == "" {
		logger.Warn("no relationship file (TOMBSTONE_RELATIONSHIPS not set); deletes will not cascade")
		return registry.New()
	}
	return registry.LoadFile(cfg.Relationships)
}
