package main

import (
	"context"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/actuator"
	switchboardcfg "github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/config"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/engine"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/handlers"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/lineup"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/store"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/worker"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/config"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/database"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/logging"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/monitoring"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/server"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("switchboard")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Switchboard (Input Source Allocation Scheduler)")

	cfg := switchboardcfg.LoadConfig()

	// === Database Connection ===
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_APPLY_SCHEMA", false) {
		if err := database.ApplySchema(context.Background(), db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	st := store.NewStore(db)

	// === Channel Lineup (optional) ===
	var channelLineup *lineup.Lineup
	if cfg.LineupPath != "" {
		var err error
		channelLineup, err = lineup.Load(cfg.LineupPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load channel lineup")
		}
		logger.WithField("path", cfg.LineupPath).Info("Channel lineup loaded")
	}

	// === Hardware Actuator ===
	var act engine.Actuator
	if cfg.ActuatorURL != "" {
		act = actuator.NewClient(cfg.ActuatorURL)
		logger.WithField("url", cfg.ActuatorURL).Info("Hardware actuator configured")
	} else {
		act = actuator.Noop{}
		logger.Warn("No ACTUATOR_URL set; hardware notifications are disabled")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("switchboard", version.Version)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	metricsCollector := monitoring.NewMetricsCollector("switchboard", version.Version, version.GitCommit)

	engineMetrics := &engine.Metrics{
		Releases:          metricsCollector.NewCounter("releases_total", "Released allocations", []string{"reason"}),
		Promotions:        metricsCollector.NewCounter("promotions_total", "Promoted pending allocations", nil).WithLabelValues(),
		SweepFailures:     metricsCollector.NewCounter("sweep_failures_total", "Per-allocation sweep failures", nil).WithLabelValues(),
		SweepDuration:     metricsCollector.NewHistogram("sweep_duration_seconds", "Reallocation sweep duration", nil, nil).WithLabelValues(),
		ActiveAllocations: metricsCollector.NewGauge("active_allocations", "Currently active allocations", nil).WithLabelValues(),
	}

	// === Reallocation Engine ===
	eng := engine.New(st, st, st, act, logger, engineMetrics, engine.Config{
		ReleaseBuffer:   cfg.ReleaseBuffer,
		ScheduleTimeout: cfg.ScheduleTimeout,
		ActuatorTimeout: cfg.ActuatorTimeout,
	})

	// === Background Workers ===
	sweeper := worker.NewSweeper(eng, logger, cfg.SweepInterval)
	go sweeper.Start(context.Background())

	// === HTTP Server ===
	serverConfig := server.DefaultConfig("switchboard", cfg.Port)

	app := server.SetupServiceRouter(logger, "switchboard", healthChecker, metricsCollector)
	handlers.New(st, eng, act, channelLineup, logger).Register(app)

	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Switchboard HTTP server failed")
	}
}
