// Finalizer sweeps closed polls on an interval and commits each tally exactly
// once; the transaction gate makes concurrent instances safe.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openpolls/tabulator/internal/app/finalize"
	"github.com/openpolls/tabulator/internal/platform/clock"
	"github.com/openpolls/tabulator/internal/platform/config"
	"github.com/openpolls/tabulator/internal/platform/health"
	"github.com/openpolls/tabulator/internal/platform/logger"
	"github.com/openpolls/tabulator/internal/platform/migrations"
	postgresstorage "github.com/openpolls/tabulator/internal/platform/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// Same GORM connection and migrations as the API, so the schema never
	// diverges between binaries.
	db, err := postgresstorage.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("postgres connection failed", "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("unwrapping sql.DB failed", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("auto migration failed", "err", err)
		}
	}

	pollRepo := postgresstorage.NewPollRepository(db)
	resultRepo := postgresstorage.NewResultRepository(db)
	coordinator := finalize.NewCoordinator(pollRepo, resultRepo, clock.NewSystemClock())
	checker := health.NewChecker(sqlDB, nil)

	if cfg.FinalizerMetricsAddress != "" {
		go func() {
			// Metrics stay up while the main goroutine runs the sweeps.
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", promhttp.Handler())
			mux.HandleFunc("GET /readyz", checker.ReadyHandler())
			logger.Info("finalizer metrics listening", "addr", cfg.FinalizerMetricsAddress)
			if err := http.ListenAndServe(cfg.FinalizerMetricsAddress, mux); err != nil {
				logger.Error("finalizer metrics server error", "err", err)
			}
		}()
	}

	logger.Info("finalizer started", "interval", cfg.FinalizerInterval)
	ticker := time.NewTicker(cfg.FinalizerInterval)
	defer ticker.Stop()

	for {
		done, err := coordinator.FinalizeDue(ctx)
		if err != nil {
			logger.Error("finalize sweep failed", "err", err)
		}
		if done > 0 {
			logger.Info("finalize sweep committed", "polls", done)
		}

		select {
		case <-ctx.Done():
			logger.Info("finalizer stopped")
			return
		case <-ticker.C:
		}
	}
}
