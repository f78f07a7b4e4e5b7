package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/backhaul/internal/api"
	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/db"
	"github.com/edvin/backhaul/internal/engine"
	"github.com/edvin/backhaul/internal/logging"
	"github.com/edvin/backhaul/internal/notify"
	"github.com/edvin/backhaul/internal/scheduler"
)

const scheduleRefreshInterval = time.Minute

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	seedFlag := flag.String("seed", "", "Seed agents and plans from a YAML file, then continue startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	services := core.NewServices(pool)

	if *seedFlag != "" {
		if err := seed(ctx, services, *seedFlag, logger); err != nil {
			logger.Fatal().Err(err).Str("file", *seedFlag).Msg("seed failed")
		}
	}

	notifier := notify.New(cfg.NotifyWebhookURL, logger)
	orchestrator := engine.NewOrchestrator(core.NewEngineStore(services), notifier, engine.Options{
		RsyncPath: cfg.RsyncPath,
		SSHPath:   cfg.SSHPath,
		KeyDir:    cfg.KeyDir,
	}, logger)

	// Close out anything a previous process left mid-run before accepting work.
	if err := orchestrator.Reconcile(ctx); err != nil {
		logger.Fatal().Err(err).Msg("reconcile failed")
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(services.Plan, orchestrator, logger)
		if err := sched.Start(ctx, scheduleRefreshInterval); err != nil {
			logger.Fatal().Err(err).Msg("scheduler failed to start")
		}
	}

	srv := api.NewServer(logger, pool, services, orchestrator, cfg)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting backup API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	httpServer.Shutdown(shutdownCtx)
	if sched != nil {
		sched.Stop()
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("executions did not close before deadline")
	}
}
