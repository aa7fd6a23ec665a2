// Package main is the entry point for the FieldWatch alert engine daemon.
//
// It loads configuration, connects to Postgres, wires the snapshot source,
// rule evaluator, alert lifecycle manager, and notification dispatcher into
// the scheduler engine, and runs the evaluation loop alongside the ops HTTP
// listener until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// a cycle in progress finishes, then the ops listener drains and the
// connection pool closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"fieldwatch/internal/alerts"
	"fieldwatch/internal/config"
	"fieldwatch/internal/db"
	"fieldwatch/internal/metrics"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/ops"
	"fieldwatch/internal/rules"
	"fieldwatch/internal/scheduler"
	"fieldwatch/internal/weather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("fieldwatch alert engine starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"cycle_interval", cfg.Engine.CycleInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolSettings{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		AcquireTimeout:    cfg.Database.AcquireTimeout,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	siteRepo := db.NewSiteRepository(pool)
	alertRepo := db.NewAlertRepository(pool)
	snapshotRepo := db.NewSnapshotRepository(pool)
	targetRepo := db.NewTargetRepository(pool)

	weatherClient := weather.NewClient(weather.ClientConfig{
		HTTPClient: &http.Client{Timeout: cfg.Weather.Timeout},
		BaseURL:    cfg.Weather.BaseURL,
		RetryPolicy: weather.RetryPolicy{
			MaxRetries: cfg.Weather.MaxRetries,
			MinWait:    cfg.Weather.RetryMinWait,
			MaxWait:    cfg.Weather.RetryMaxWait,
		},
		ForecastPoints: cfg.Weather.ForecastPoints,
		Logger:         logger,
	})

	pushClient := notify.NewPushClient(notify.PushClientConfig{
		HTTPClient: &http.Client{Timeout: cfg.Push.Timeout},
		BaseURL:    cfg.Push.BaseURL,
		APIKey:     cfg.Push.APIKey.Unmask(),
		Logger:     logger,
	})
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Targets: targetRepo,
		Sender:  pushClient,
		Logger:  logger,
	})

	manager := alerts.NewManager(alerts.ManagerConfig{
		Store:             alertRepo,
		SuppressionWindow: cfg.Engine.SuppressionWindow,
		Logger:            logger,
	})

	emitter, err := newMetricsEmitter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cycle := scheduler.NewCycleRunner(scheduler.CycleRunnerConfig{
		Sites:       siteRepo,
		Source:      weatherClient,
		Snapshots:   snapshotRepo,
		Evaluator:   rules.NewEvaluator(cfg.Thresholds),
		Reconciler:  manager,
		Dispatcher:  dispatcher,
		Metrics:     emitter,
		Concurrency: cfg.Engine.Concurrency,
		PacingDelay: cfg.Engine.PacingDelay,
		Logger:      logger,
	})
	cleanup := scheduler.NewCleanupService(scheduler.CleanupServiceConfig{
		Alerts:            alertRepo,
		Snapshots:         snapshotRepo,
		Metrics:           emitter,
		AlertTTL:          cfg.Retention.AlertTTL,
		SnapshotRetention: cfg.Retention.SnapshotRetention,
		ArchiveDir:        cfg.Retention.ArchiveDir,
		Logger:            logger,
	})
	engine := scheduler.NewEngine(scheduler.EngineConfig{
		Cycle:           cycle,
		Cleanup:         cleanup,
		CycleInterval:   cfg.Engine.CycleInterval,
		CleanupInterval: cfg.Engine.CleanupInterval,
		Logger:          logger,
	})

	opsServer := ops.NewServer(ops.ServerConfig{
		Engine:  engine,
		DB:      pool,
		Alerts:  alertRepo,
		Logger:  logger,
		Version: cfg.Build.Version,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Ops.Port,
		Handler:           opsServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // manual cycle runs synchronously
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops listener started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	engineDone := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(engineDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			stop()
			<-engineDone
			return fmt.Errorf("ops listener error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	engine.Stop()
	<-engineDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops listener shutdown error", "error", err)
	}

	logger.Info("alert engine stopped cleanly")
	return nil
}

// newMetricsEmitter builds the CloudWatch emitter, or a no-op emitter when
// metrics are disabled so local runs need no AWS credentials.
func newMetricsEmitter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metrics.Emitter, error) {
	if !cfg.Metrics.Enabled {
		return metrics.NewEmitter(nil, logger), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return metrics.NewEmitter(cloudwatch.NewFromConfig(awsCfg), logger), nil
}

// newLogger creates a structured slog.Logger configured for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
