package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tripdeals/internal/adapters/feed"
	server "tripdeals/internal/adapters/http_server"
	"tripdeals/internal/adapters/intentparse"
	"tripdeals/internal/adapters/observability"
	"tripdeals/internal/adapters/realtime"
	redisad "tripdeals/internal/adapters/redis"
	"tripdeals/internal/app"
	"tripdeals/internal/scheduler"
	"tripdeals/internal/shared"
	mysqlrepo "tripdeals/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; reads will go to the database")
	}

	fc, err := feed.New(cfg.FeedBase, cfg.FeedKey, cfg.FeedRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feed client")
	}

	// deps
	repo := mysqlrepo.New(db)
	broker := realtime.NewBroker(cfg.WSWriteTimeout)
	parser := intentparse.New()
	bundles := app.NewBundleService(repo, nil)
	watches := app.NewWatchService(repo, repo)
	chat := app.NewChatService(parser, bundles, watches, cache, cfg.SessionTTL)
	evaluator := app.NewWatchEvaluator(repo, repo, broker)
	scan := app.NewScanService(fc, repo, cache, broker, evaluator, cfg.ScanWorkers)
	sched := scheduler.New(scan, cfg.ScanInterval)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:       app.NewQueryService(repo, cache, cfg.CacheTTL),
		Bundles: bundles,
		Parser:  parser,
		Chat:    chat,
		Watches: watches,
		Scans:   sched,
		Live:    broker,
	})
	srv.MountStream("/events", realtime.NewHandler(broker, chat, cfg.WSWriteTimeout).WithIdleTimeout(cfg.WSIdleTimeout))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Dur("interval", cfg.ScanInterval).Msg("scan scheduler starting")
		return sched.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sched.Stop()
		// websocket connections are hijacked; Shutdown does not wait for them
		broker.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("bye")
}
