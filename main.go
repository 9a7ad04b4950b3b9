package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/bot"
	"github.com/omriShneor/babycare_bot/internal/config"
	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/logging"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/notify"
	"github.com/omriShneor/babycare_bot/internal/scheduler"
	"github.com/omriShneor/babycare_bot/internal/server"
	"github.com/omriShneor/babycare_bot/internal/store"
	"github.com/omriShneor/babycare_bot/internal/telegram"
)

func main() {
	cfg := config.LoadFromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.DevMode, cfg.LogFile)
	if err != nil {
		fatal("creating logger", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Phase 1: Core infrastructure
	catalog, err := i18n.Load(cfg.DefaultLanguage)
	if err != nil {
		logger.Fatal("failed to load translations", zap.Error(err))
	}

	db, err := database.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	reminders, closeStore, err := initStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open reminder store", zap.Error(err))
	}
	defer closeStore()

	m := metrics.MustNewMetrics(prometheus.DefaultRegisterer)
	m.SetStored(reminders.Len())

	srv := server.New(server.ServerConfig{
		Reminders: reminders,
		DB:        db,
		Gatherer:  prometheus.DefaultGatherer,
		Port:      cfg.HTTPPort,
		Logger:    logger,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Phase 2: Telegram, routing and the due-check
	tgClient, err := telegram.NewClient(telegram.ClientConfig{
		APIID:       cfg.TelegramAPIID,
		APIHash:     cfg.TelegramAPIHash,
		BotToken:    cfg.TelegramBotToken,
		SessionPath: cfg.TelegramSessionPath,
		Users:       db,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to create Telegram client", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Reminders:  reminders,
		Messenger:  tgClient,
		Catalog:    catalog,
		Users:      db,
		Deliveries: db,
		Metrics:    m,
		Logger:     logger,
	})

	sched := scheduler.New(logger)
	tick := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.TickInterval)
		defer cancel()
		// Errors are logged by the dispatcher; the next tick retries.
		_, _ = dispatcher.Tick(ctx)
	}

	router := bot.NewRouter(bot.Config{
		Reminders:       reminders,
		Users:           db,
		Messenger:       tgClient,
		Catalog:         catalog,
		Metrics:         m,
		Logger:          logger,
		DefaultTimezone: cfg.DefaultTimezone,
		Wakeup: func(at time.Time) {
			sched.At(at, tick)
		},
	})
	tgClient.SetHandler(router)

	if _, err := sched.Every(cfg.TickInterval, tick); err != nil {
		logger.Fatal("failed to schedule due-check", zap.Error(err))
	}

	if err := tgClient.Connect(); err != nil {
		logger.Fatal("failed to connect to Telegram", zap.Error(err))
	}
	srv.SetTransport(tgClient)
	tgClient.StartUpdateLoop()
	sched.Start()

	logger.Info("babycare bot running",
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Int("reminders", reminders.Len()))

	waitForShutdown(logger, sched, srv, tgClient)
}

// initStore opens the reminders document on the configured backend. A corrupt document is
// moved aside and the bot starts empty.
func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, func(), error) {
	var (
		persister store.Persister
		closeFn   = func() {}
	)

	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		persister = store.NewRedisPersister(client, cfg.RedisKey)
		closeFn = func() { client.Close() }
		logger.Info("using redis reminder store", zap.String("addr", cfg.RedisAddr), zap.String("key", cfg.RedisKey))
	default:
		fp, err := store.NewFilePersister(cfg.DataPath)
		if err != nil {
			return nil, nil, err
		}
		persister = fp
		logger.Info("using file reminder store", zap.String("path", cfg.DataPath))
	}

	reminders := store.New(persister, logger)
	if err := reminders.Load(ctx); err != nil {
		if !errors.Is(err, store.ErrCorruptDocument) {
			closeFn()
			return nil, nil, err
		}
		logger.Warn("reminders document was corrupt, starting empty", zap.Error(err))
	}
	return reminders, closeFn, nil
}

func fatal(context string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", context, err)
	os.Exit(1)
}

func waitForShutdown(logger *zap.Logger, sched *scheduler.Scheduler, srv *server.Server, tgClient *telegram.Client) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.Stop()
	tgClient.Disconnect()
	tgClient.Wait()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
}
