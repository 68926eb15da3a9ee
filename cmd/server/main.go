package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"signalist/internal/api"
	"signalist/internal/config"
	"signalist/internal/db"
	"signalist/internal/logger"
	"signalist/internal/market"
	"signalist/internal/metrics"
	"signalist/internal/notification"
	"signalist/internal/realtime"
	"signalist/internal/store"
)

func main() {
	dotEnvErr := config.LoadDotEnv()
	logger.Init(os.Getenv("ENV"))
	if dotEnvErr != nil {
		logger.Get().Debug(".env file not found")
	}

	if err := run(); err != nil {
		logger.Get().Errorw("server failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Get()

	var rdb *redis.Client
	if cfg.StoreBackend == "redis" || cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			if cfg.StoreBackend == "redis" {
				return fmt.Errorf("connect redis: %w", err)
			}
			log.Warnw("redis unavailable, last-known quotes kept in memory", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		}
	}

	port, closeStore, err := openStore(cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	var cache market.QuoteCache
	if rdb != nil {
		cache = market.NewRedisQuoteCache(rdb, cfg.QuoteCacheTTL)
	}

	mock, err := market.NewMockProvider()
	if err != nil {
		return fmt.Errorf("load mock quotes: %w", err)
	}
	live := market.NewFinnhubProvider(cfg.FinnhubBaseURL, cfg.FinnhubAPIKey, cfg.FinnhubRPS, cfg.FinnhubBurst)
	if !live.Configured() {
		log.Warn("FINNHUB_API_KEY not set, serving mock quotes")
	}

	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiServer := api.NewServer(api.Deps{
		Repo:         store.NewRepository(port),
		Source:       market.NewSource(live, mock, cache),
		Hub:          realtime.NewHub(),
		Notifier:     notifiers,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		WatchSymbols: cfg.WatchSymbols,
		CORSOrigins:  cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go apiServer.StartPolling(ctx, cfg.PollInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnw("shutdown error", "error", err)
		}
	}()

	log.Infow("signalist listening",
		"addr", cfg.Addr,
		"store", cfg.StoreBackend,
		"poll_interval", cfg.PollInterval,
		"watch", len(cfg.WatchSymbols),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config, rdb *redis.Client) (store.Port, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		return store.NewRedisPort(rdb, "signalist:"), func() {}, nil
	case "memory":
		return store.NewMemoryPort(), func() {}, nil
	default:
		sqlDB, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("database init failed: %w", err)
		}
		return store.NewSQLitePort(sqlDB), func() { closeDB(sqlDB) }, nil
	}
}

func closeDB(sqlDB *sql.DB) {
	if err := sqlDB.Close(); err != nil {
		logger.Get().Warnw("close database", "error", err)
	}
}
