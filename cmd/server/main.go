package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/api"
	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/config"
	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/eventbus"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/metrics"
	"github.com/mescon/motion/internal/notifier"
	"github.com/mescon/motion/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (MOTION_*)
	flagPort := flag.String("port", "", "HTTP server port (env: MOTION_PORT, default: 3095)")
	flagBasePath := flag.String("base-path", "", "URL base path for reverse proxy (env: MOTION_BASE_PATH, default: /)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: MOTION_LOG_LEVEL, default: info)")
	flagTimeSource := flag.String("time-source", "", "Driver time source: native or eventloop (env: MOTION_TIME_SOURCE, default: native)")
	flagTick := flag.Duration("tick", 0, "Pause between value updates (env: MOTION_TICK_INTERVAL, default: 16ms)")
	flagRestart := flag.String("restart-policy", "", "Start while running: ignore or restart (env: MOTION_RESTART_POLICY, default: ignore)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep journal events, 0 to disable pruning (env: MOTION_RETENTION_DAYS, default: 30)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: MOTION_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: MOTION_DATABASE_PATH)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("motion %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()
	overrides := config.FlagOverrides{
		Port:          flagPort,
		BasePath:      flagBasePath,
		LogLevel:      flagLogLevel,
		TimeSource:    flagTimeSource,
		TickInterval:  flagTick,
		RestartPolicy: flagRestart,
		DataDir:       flagDataDir,
		DatabasePath:  flagDatabasePath,
	}
	// -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		overrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(overrides)
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting motion %s...", config.Version)
	logger.Infof("========================================")
	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Base Path: %s", cfg.BasePath)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Database: %s (busy retries %d, backoff from %s)", cfg.DatabasePath, cfg.DBMaxRetries, cfg.DBRetryDelay)
	logger.Infof("  Time Source: %s (tick %s)", cfg.TimeSource, cfg.TickInterval)
	logger.Infof("  Restart Policy: %s", cfg.RestartPolicy)
	logger.Infof("  Defaults: %s, %s", cfg.DefaultDuration, cfg.DefaultEasing)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Event Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Event Retention: disabled (no automatic pruning)")
	}

	db.SetRetryPolicy(db.RetryPolicy{MaxRetries: cfg.DBMaxRetries, BaseDelay: cfg.DBRetryDelay})
	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized successfully")

	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	// The event-loop source needs a host; its timers fire on one goroutine
	var loop *clock.Loop
	if cfg.TimeSource == clock.SourceEventLoop {
		loop = clock.NewLoop()
	}
	var host clock.Clock
	if loop != nil {
		host = loop
	}
	source, err := clock.Select(cfg.TimeSource, host)
	if err != nil {
		logger.Errorf("Invalid time source: %v", err)
		os.Exit(1)
	}
	policy, _ := animation.ParseRestartPolicy(cfg.RestartPolicy)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	registry := services.NewMotionRegistry(rootCtx, repo, eb, services.RegistryConfig{
		TimeSource:      source,
		TickInterval:    cfg.TickInterval,
		RestartPolicy:   policy,
		DefaultDuration: cfg.DefaultDuration,
		DefaultEasing:   cfg.DefaultEasing,
	})
	if n, err := registry.Restore(); err != nil {
		logger.Errorf("Failed to restore motions: %v", err)
	} else {
		logger.Infof("✓ Motion Registry (%d motions restored)", n)
	}
	metricsService.SetRegistered(registry.Count())

	notifierService := notifier.NewNotifier(eb, cfg.NotifyURLs, notifier.WithThrottle(cfg.NotifyThrottle))
	if err := notifierService.Start(); err != nil {
		// Non-fatal - continue without notifications
		logger.Errorf("Failed to start notification service: %v", err)
	} else {
		logger.Infof("✓ Notification Service (%d destinations)", notifierService.Destinations())
	}

	schedulerService := services.NewSchedulerService(repo, registry, eb, services.SchedulerConfig{
		MaintenanceSchedule: cfg.MaintenanceSchedule,
		RetentionDays:       cfg.RetentionDays,
	})
	schedulerService.Start()
	logger.Infof("✓ Scheduler Service (cron-based runs)")

	logger.Infof("Checking for interrupted runs to resume...")
	recovery := services.NewRecoveryService(repo, registry)
	if n, err := recovery.ResumeInterrupted(); err != nil {
		logger.Errorf("Failed to resume interrupted runs: %v", err)
	} else if n > 0 {
		logger.Infof("✓ Resumed %d interrupted runs", n)
	}

	apiServer := api.NewRESTServer(api.ServerDeps{
		Config:    cfg,
		Repo:      repo,
		EventBus:  eb,
		Registry:  registry,
		Scheduler: schedulerService,
		Metrics:   metricsService,
	})
	go func() {
		if err := apiServer.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ motion %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown in reverse order of startup
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	schedulerService.Stop()
	logger.Infof("✓ Scheduler Service stopped")

	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	registry.Shutdown()
	if loop != nil {
		loop.Close()
	}
	logger.Infof("✓ Motion Registry stopped")

	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("✓ motion shutdown complete")
	_ = logger.Close()
}
