// Package main is the entry point for the quotegate server: the edge
// gateway plus the in-process quote pipeline behind one HTTP surface.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env file)
//  2. Initialize logging
//  3. Open the cache database and apply the schema
//  4. Wire the gateway engine (router, rate limiter, edge cache) and the
//     quote pipeline (resolver, normalizer, result cache)
//  5. Register maintenance jobs with the cron scheduler
//  6. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/quotegate/internal/config"
	"github.com/aristath/quotegate/internal/database"
	"github.com/aristath/quotegate/internal/gateway"
	"github.com/aristath/quotegate/internal/modules/quotes"
	"github.com/aristath/quotegate/internal/modules/resolver"
	"github.com/aristath/quotegate/internal/modules/timeseries"
	"github.com/aristath/quotegate/internal/scheduler"
	"github.com/aristath/quotegate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting quotegate server")

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := cacheDB.Migrate(quotes.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply cache schema")
	}

	// Gateway engine.
	router := gateway.NewRouter(cfg.FXAPIKey, log)
	limiter := gateway.NewLimiter(gateway.LimiterConfig{
		ShortWindow: cfg.RateLimit.ShortWindow,
		ShortLimit:  cfg.RateLimit.ShortLimit,
		LongWindow:  cfg.RateLimit.LongWindow,
		LongLimit:   cfg.RateLimit.LongLimit,
	}, log)
	edgeCache := gateway.NewEdgeCache(router, nil, log)
	engine := gateway.NewService(router, edgeCache, limiter, log)

	// Quote pipeline, fetching through the engine in-process.
	res := resolver.New(resolver.DefaultOverrides(), resolver.NewMemorySuccessStore(), log)
	norm := timeseries.New(log)
	store := quotes.NewSQLiteStore(cacheDB.Conn(), cfg.ResultTTL)
	resultCache := quotes.NewCache(store, cfg.ResultTTL, log)
	pipeline := quotes.NewService(res, norm, engine, resultCache, log)

	// Maintenance jobs.
	sched := scheduler.New(log)
	if err := sched.AddJob("0 */10 * * * *", gateway.NewPruneJob(limiter, edgeCache, time.Hour, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register gateway prune job")
	}
	if err := sched.AddJob("@hourly", quotes.NewCleanupJob(store, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	sched.Start()
	defer sched.Stop()

	srv := gateway.NewServer(gateway.ServerConfig{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	}, engine, pipeline, log)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
