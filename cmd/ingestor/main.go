package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/adapters/feed"
	"tripdeals/internal/adapters/observability"
	redisad "tripdeals/internal/adapters/redis"
	"tripdeals/internal/app"
	"tripdeals/internal/shared"
	mysqlrepo "tripdeals/internal/storage/mysql"
)

// ingestor runs one scan cycle and exits. Deals are not pushed anywhere:
// there are no live subscribers in a one-shot process.
func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("base", cfg.FeedBase).
		Int("workers", cfg.ScanWorkers).
		Msg("ingestor starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := feed.New(cfg.FeedBase, cfg.FeedKey, cfg.FeedRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feed client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	evaluator := app.NewWatchEvaluator(repo, repo, nil)
	scan := app.NewScanService(client, repo, cache, nil, evaluator, cfg.ScanWorkers)

	sum, err := scan.RunScan(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}
	log.Info().
		Int("flights", sum.FlightsSeen).
		Int("flight_deals", sum.FlightDeals).
		Int("hotels", sum.HotelsSeen).
		Int("hotel_deals", sum.HotelDeals).
		Int("skipped", sum.Skipped).
		Int("watch_events", sum.Watches.Fired).
		Msg("ingestion completed")
}
