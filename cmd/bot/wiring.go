package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/infra/config"
	idb "study_delivery_bot/internal/infra/database"
	"study_delivery_bot/internal/infra/lock"
	"study_delivery_bot/internal/infra/logger"
	"study_delivery_bot/internal/infra/telegram"
)

// runtime holds the shared dependencies of every command.
type runtime struct {
	cfg     *config.AppConfig
	log     *logrus.Entry
	db      *sql.DB
	store   *idb.SQLStore
	closers []func()
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg)
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"driver":      cfg.DatabaseDriver,
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Configuration loaded")

	db, err := idb.Open(cfg.DatabaseDriver, cfg.DatabaseURL, logger.Component("database"))
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log, db: db, store: idb.NewSQLStore(db)}
	rt.closers = append(rt.closers, func() { db.Close() })

	if err := idb.Migrate(ctx, db, cfg.DatabaseDriver); err != nil {
		rt.Close()
		return nil, fmt.Errorf("could not apply schema: %w", err)
	}
	log.Info("Database connection established successfully")
	return rt, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// locker returns a Redis lease when REDIS_ADDRESS is set, a process-local one otherwise.
func (rt *runtime) locker(ctx context.Context) (app.Locker, error) {
	if rt.cfg.RedisAddress == "" {
		rt.log.Info("Redis not configured, using in-process engine lock")
		return lock.NewLocalLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, rt.cfg.RedisAddress, rt.cfg.RedisUsername, rt.cfg.RedisPassword, rt.cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	rt.closers = append(rt.closers, func() { client.Close() })
	rt.log.WithField("address", rt.cfg.RedisAddress).Info("Using Redis engine lock")
	return lock.NewRedisLocker(client, "study_delivery_bot:lock:"), nil
}

func (rt *runtime) bot(poll bool) (*telebot.Bot, error) {
	if err := rt.cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  rt.cfg.TelegramToken,
		Client: &http.Client{Timeout: rt.cfg.SendTimeout},
		OnError: func(err error, c telebot.Context) {
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
			}
			entry.Error("Telegram handler error")
		},
	}
	if poll {
		pref.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
		// Long polling holds the request open for the poll timeout.
		pref.Client = &http.Client{Timeout: rt.cfg.SendTimeout + 10*time.Second}
	}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return b, nil
}

// engine wires the delivery executor, runner and services.
type engine struct {
	executor    *app.DeliveryExecutor
	runner      *app.EngineRunner
	admin       *app.AdminService
	subscribers *app.SubscriberService
}

func (rt *runtime) engine(ctx context.Context, b *telebot.Bot) (*engine, error) {
	locker, err := rt.locker(ctx)
	if err != nil {
		return nil, err
	}
	cfg := rt.cfg
	retry := app.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Multiplier:  cfg.RetryMultiplier,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	executor := app.NewDeliveryExecutor(rt.store, telegram.NewTelebotAdapter(b), retry, cfg.SendTimeout, logger.Component("executor"))
	runner := app.NewEngineRunner(rt.store, executor, locker, cfg.TickLockTTL, logger.Component("runner"))
	return &engine{
		executor:    executor,
		runner:      runner,
		admin:       app.NewAdminService(rt.store, runner, cfg.AdminTelegramID, cfg.MetricsWindow, cfg.DefaultTimezone),
		subscribers: app.NewSubscriberService(rt.store, executor, cfg.MetricsWindow, logger.Component("subscribers")),
	}, nil
}
