// Reconciler binary: periodically recounts votes and repairs drifted choice counters.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knppkp/pollboard/internal/app/reconciler"
	"github.com/knppkp/pollboard/internal/platform/config"
	"github.com/knppkp/pollboard/internal/platform/health"
	"github.com/knppkp/pollboard/internal/platform/logger"
	"github.com/knppkp/pollboard/internal/platform/migrations"
	postgresstorage "github.com/knppkp/pollboard/internal/platform/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// Shares the API's GORM models and migrations so the schema never diverges.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("postgres connection failed", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to unwrap sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("automatic migration failed", "err", err)
		}
	}

	checker := health.NewChecker(sqlDB, nil)

	if cfg.ReconcilerMetricsAddress != "" {
		go func() {
			// Metrics stay reachable while the main goroutine runs the loop.
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("reconciler metrics listening", "addr", cfg.ReconcilerMetricsAddress)
			if err := http.ListenAndServe(cfg.ReconcilerMetricsAddress, mux); err != nil {
				logger.Error("reconciler metrics server error", "err", err)
			}
		}()
	}

	ballotRepo := postgresstorage.NewBallotRepository(db)
	rec := reconciler.New(ballotRepo, logger.L())

	interval := time.Duration(cfg.ReconcileIntervalSeconds) * time.Second
	logger.Info("reconciler started", "interval", interval.String())

	err = rec.Run(ctx, interval)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("reconciler stopped with error", "err", err)
	}

	logger.Info("reconciler stopped")
}
