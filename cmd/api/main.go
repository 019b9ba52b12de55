// API binary: loads the configuration, wires the dependencies and serves HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openpolls/tabulator/internal/app/finalize"
	"github.com/openpolls/tabulator/internal/app/httpapi"
	"github.com/openpolls/tabulator/internal/app/voting"
	"github.com/openpolls/tabulator/internal/platform/clock"
	"github.com/openpolls/tabulator/internal/platform/config"
	"github.com/openpolls/tabulator/internal/platform/health"
	"github.com/openpolls/tabulator/internal/platform/ids"
	"github.com/openpolls/tabulator/internal/platform/logger"
	"github.com/openpolls/tabulator/internal/platform/migrations"
	postgresstorage "github.com/openpolls/tabulator/internal/platform/storage/postgres"
	redisstorage "github.com/openpolls/tabulator/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	// The connection is shared across the whole lifecycle: pool reuse plus
	// readiness checks off the same handle.
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
		// Automatic migrations stay opt-out so production rollouts control
		// their own schema changes.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("auto migration failed", "err", err)
		}
	}

	// Redis only backs the advisory live counters; ballots and results live
	// in Postgres.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("redis connection failed", "err", err)
	}
	defer redisClient.Close()

	pollRepo := postgresstorage.NewPollRepository(db)
	ballotRepo := postgresstorage.NewBallotRepository(db)
	resultRepo := postgresstorage.NewResultRepository(db)
	liveCounter := redisstorage.NewCounter(redisClient, cfg.CounterKeyPrefix)
	systemClock := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	service := voting.NewService(pollRepo, ballotRepo, liveCounter, systemClock, idGen, logger.L())
	coordinator := finalize.NewCoordinator(pollRepo, resultRepo, systemClock)

	mux := http.NewServeMux()
	checker := health.NewChecker(sqlDB, redisClient)

	// HTTP exposes the API, health checks and the metrics Prometheus scrapes.
	api := httpapi.New(service, coordinator, logger.L())
	api.Register(mux)
	mux.HandleFunc("GET /readyz", checker.ReadyHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: api.WithRequestLog(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	logger.Info("api listening", "addr", cfg.HTTPAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", "err", err)
	}

	logger.Info("api stopped")
}
