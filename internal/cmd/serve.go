package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/modlens/modlens/internal/config"
	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/core/engine"
	"github.com/modlens/modlens/internal/core/fetcher"
	"github.com/modlens/modlens/internal/core/store"
	errwrap "github.com/modlens/modlens/internal/errors"
	"github.com/modlens/modlens/internal/observability"
	"github.com/modlens/modlens/internal/server"
	"github.com/modlens/modlens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// engineHealthChecker reports unhealthy when the background loop is expected
// to run but is stopped.
type engineHealthChecker struct {
	controller *engine.SyncController
	autoStart  bool
}

func (e engineHealthChecker) CheckHealth(ctx context.Context) error {
	if e.controller == nil {
		return errwrap.NewInternalError("sync engine not initialized")
	}
	if e.autoStart && !e.controller.Status().Running {
		return errwrap.NewInternalError("background fetch loop is not running")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and background sync engine",
	Long: `Start the HTTP server with graceful shutdown support.

The background fetch engine refreshes stale mod metadata under the shared
token budget. Control it at runtime via GET/POST /background-fetch.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly stop the sync engine, flush snapshots, and flush
logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed")
		}

		// Initialize server logger
		observability.InitServerLogger(appName, cfg.Logging.Level)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		if err := observability.InitMetrics(appName, metricsPort); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", serverHost),
			zap.Int("port", serverPort),
			zap.Int("metrics_port", metricsPort))

		// Assemble the sync engine from configuration. The engine instance is
		// owned here and passed by reference to the HTTP layer.
		bucket := engine.NewTokenBucket(cfg.Engine.BucketCapacity, cfg.Engine.RefillRatePerSecond)
		cache := engine.NewMetadataCache()
		upstream := &fetcher.WorkshopClient{
			Client:  &http.Client{Timeout: cfg.Upstream.Timeout},
			BaseURL: cfg.Upstream.BaseURL,
			APIKey:  cfg.Upstream.APIKey,
		}
		scheduler := &engine.FetchScheduler{
			Bucket:         bucket,
			Cache:          cache,
			Upstream:       upstream,
			TTL:            cfg.Engine.TTL,
			SweepInterval:  cfg.Engine.SweepInterval,
			BaseRetryDelay: cfg.Engine.BaseRetryDelay,
			MaxRetryDelay:  cfg.Engine.MaxRetryDelay,
			MaxRetries:     cfg.Engine.MaxRetries,
		}
		controller := engine.NewSyncController(scheduler, cfg.Engine.SweepInterval)

		// Optional snapshot store: warm the cache from the last run and
		// write fresh records through on every successful fetch.
		var snapshots *store.Store
		if cfg.Store.Enabled {
			snapshots, err = store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				observability.ServerLogger.Warn("Snapshot store unavailable, continuing without persistence",
					zap.Error(err))
			} else {
				records, err := snapshots.ListRecords(cmd.Context())
				if err != nil {
					observability.ServerLogger.Warn("Failed to load persisted records",
						zap.Error(err))
				} else {
					controller.Warm(records)
					observability.ServerLogger.Info("Warmed cache from snapshot store",
						zap.Int("records", len(records)))
				}

				scheduler.Persist = func(ctx context.Context, record *core.ModRecord) {
					if err := snapshots.UpsertRecord(ctx, record); err != nil {
						observability.ServerLogger.Warn("Failed to persist record snapshot",
							zap.String("key", record.Key),
							zap.Error(err))
					}
				}
			}
		}

		// Initialize health manager
		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("engine", engineHealthChecker{
			controller: controller,
			autoStart:  cfg.Engine.AutoStart,
		})
		if snapshots != nil {
			hm.RegisterChecker("store", snapshots)
		}

		// Create server
		srv := server.New(serverHost, serverPort, controller, hm)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Close snapshot store
		if snapshots != nil {
			signals.OnShutdown(func(ctx context.Context) error {
				observability.ServerLogger.Info("Closing snapshot store...")
				return snapshots.Close()
			})
		}

		// Handler 3: Stop the sync engine (in-flight fetches complete)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Stopping background fetch engine...")
			controller.Stop()
			return nil
		})

		// Handler 4: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				observability.ServerLogger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			// Engine policy parameters require a restart to change; the
			// reload only refreshes viper state for components that read it
			// lazily.
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		if cfg.Engine.AutoStart {
			controller.Start()
			observability.ServerLogger.Info("Background fetch engine started",
				zap.Duration("sweep_interval", cfg.Engine.SweepInterval),
				zap.Int("bucket_capacity", cfg.Engine.BucketCapacity),
				zap.Float64("refill_rate_per_second", cfg.Engine.RefillRatePerSecond))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", serverHost),
				zap.Int("port", serverPort))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
