package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedkeeper/internal/config"
	"feedkeeper/internal/publisher"
	"feedkeeper/internal/scheduler"
	"feedkeeper/internal/service"
	"feedkeeper/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Entry events are optional; run without a publisher when no broker is
	// configured.
	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	// Initialize stores
	feedStore := postgres.NewFeedStore(db)
	entryStore := postgres.NewEntryStore(db)
	imageStore := postgres.NewImageStore(db)
	jobLogStore := postgres.NewJobLogStore(db)
	txManager := postgres.NewTransactionManager(db)

	fetchCfg := service.FetchConfig{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
	}

	fetcher := service.NewFetcherService(entryStore, txManager, pub, fetchCfg, logger)
	images := service.NewImageService(feedStore, imageStore, fetchCfg, logger)
	batch := service.NewBatchService(feedStore, jobLogStore, fetcher, images, cfg.Fetch.Concurrency, logger)

	sched := scheduler.NewScheduler(batch, feedStore, scheduler.Config{
		Interval:      cfg.Refresh.Interval,
		FeedCooldown:  cfg.Refresh.FeedCooldown,
		ImageCooldown: cfg.Refresh.ImageCooldown,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting feedkeeper",
		"interval", cfg.Refresh.Interval,
		"concurrency", cfg.Fetch.Concurrency,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
