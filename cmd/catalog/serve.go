package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/internal/blob"
	"github.com/almecha/GlucoseIoT/internal/config"
	"github.com/almecha/GlucoseIoT/internal/core"
	"github.com/almecha/GlucoseIoT/internal/httpapi"
	"github.com/almecha/GlucoseIoT/internal/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to start catalog", zap.Error(err))
				return err
			}
			ln, err := net.Listen("tcp", cfg.Server.Address)
			if err != nil {
				_ = a.Close()
				return fmt.Errorf("listen %s: %w", cfg.Server.Address, err)
			}
			return a.Run(ctx, ln)
		},
	}
}

// app owns the long-lived pieces of a running catalog.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	svc       *core.Service
	server    *http.Server
	scheduler *core.Scheduler
	storage   io.Closer
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	store, closer, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		FilePath:    cfg.Storage.FilePath,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
		Defaults:    catalogDefaults(cfg.Catalog),
		Logger:      logger,
	}, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)),
		core.WithPasswordHasher(core.NewPasswordHasher(cfg.Security.BcryptCost)),
	)

	handlerOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if cfg.Metrics.Enabled {
		handlerOpts = append(handlerOpts,
			httpapi.WithRequestMetrics(httpapi.NewRequestMetrics(reg)),
			httpapi.WithMetricsHandler(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		server: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           httpapi.NewHandler(svc, handlerOpts...).Router(),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
		scheduler: core.NewScheduler(logger),
		storage:   closer,
	}
	if err := a.schedule(ctx); err != nil {
		_ = closer.Close()
		return nil, err
	}
	return a, nil
}

// schedule registers the optional background jobs.
func (a *app) schedule(ctx context.Context) error {
	if a.cfg.Sweeper.Enabled {
		maxAge := a.cfg.Sweeper.MaxAge
		err := a.scheduler.Add("device_sweep", a.cfg.Sweeper.Schedule, func(ctx context.Context) error {
			_, err := a.svc.SweepStaleDevices(ctx, maxAge)
			return err
		})
		if err != nil {
			return err
		}
	}
	if a.cfg.Archive.Enabled {
		blobs, err := blob.Open(ctx, blob.Config{
			Driver:      a.cfg.Blob.Driver,
			FSRoot:      a.cfg.Blob.FSRoot,
			S3Bucket:    a.cfg.Blob.S3Bucket,
			S3Region:    a.cfg.Blob.S3Region,
			S3Endpoint:  a.cfg.Blob.S3Endpoint,
			S3PathStyle: a.cfg.Blob.S3PathStyle,
		})
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		archiver := core.NewSnapshotArchiver(a.svc, blobs, core.ArchiveOptions{
			Prefix: a.cfg.Archive.Prefix,
			Retain: a.cfg.Archive.Retain,
			Logger: a.logger,
		})
		err = a.scheduler.Add("snapshot_archive", a.cfg.Archive.Schedule, func(ctx context.Context) error {
			_, err := archiver.Archive(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Run serves on ln until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (a *app) Run(ctx context.Context, ln net.Listener) error {
	a.scheduler.Start()
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("catalog listening", zap.String("address", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.logger.Info("shutting down catalog")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown: %w", err)
	}
	a.scheduler.Stop()
	if err := a.Close(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (a *app) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases the storage backend.
func (a *app) Close() error {
	if a.storage == nil {
		return nil
	}
	err := a.storage.Close()
	a.storage = nil
	return err
}
