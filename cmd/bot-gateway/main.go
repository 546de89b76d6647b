package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-lead-bot/internal/adapters/bot"
	"tg-lead-bot/internal/adapters/ledger"
	"tg-lead-bot/internal/adapters/overflow"
	"tg-lead-bot/internal/adapters/telegram"
	"tg-lead-bot/internal/domain"
	"tg-lead-bot/internal/infra/config"
	"tg-lead-bot/internal/infra/db"
	httpserver "tg-lead-bot/internal/infra/http"
	"tg-lead-bot/internal/infra/log"
	"tg-lead-bot/internal/infra/metrics"
	"tg-lead-bot/internal/infra/queue"
	"tg-lead-bot/internal/usecase/ack"
	"tg-lead-bot/internal/usecase/dispatch"
	"tg-lead-bot/internal/usecase/extract"
	"tg-lead-bot/internal/usecase/report"
	"tg-lead-bot/internal/usecase/route"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("TG_BOT_TOKEN не задан")
	}
	tabs, err := config.LoadRecipients(cfg.Routing.RecipientsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Routing.RecipientsFile).Msg("не удалось загрузить карту получателей")
	}
	resolver := route.NewResolver(tabs, cfg.Routing.DefaultBucket)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend domain.Ledger
	switch cfg.Ledger.Backend {
	case "postgres":
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
		}
		defer pool.Close()
		pg := ledger.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("не удалось создать схему леджера")
		}
		backend = pg
	case "sheets":
		if cfg.Ledger.SpreadsheetID == "" {
			logger.Fatal().Msg("SPREADSHEET_ID не задан")
		}
		sheetsLedger, err := ledger.NewSheets(ctx, cfg.Ledger.CredsFile, cfg.Ledger.SpreadsheetID)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к Google Sheets")
		}
		backend = sheetsLedger
	default:
		logger.Fatal().Str("backend", cfg.Ledger.Backend).Msg("неизвестный бэкенд леджера")
	}
	if _, err := backend.ListBuckets(ctx); err != nil {
		logger.Fatal().Err(err).Msg("леджер недоступен на старте")
	}

	durable := ledger.NewDurable(backend, logger, cfg.Delivery.MaxAttempts, cfg.Delivery.BackoffBase, cfg.Delivery.BackoffCap)
	overflowStore, err := overflow.NewStore(cfg.Delivery.OverflowDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть дисковую очередь")
	}

	var dispatchQueue domain.DispatchQueue
	switch cfg.Queue.Backend {
	case "memory":
		dispatchQueue = queue.NewMemoryDispatchQueue()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.Redis})
		dispatchQueue = queue.NewRedisDispatchQueue(client, cfg.Queue.Key)
	case "rabbit":
		rabbit, err := queue.NewRabbitDispatchQueue(cfg.Queue.AMQPURL, cfg.Queue.Key)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		dispatchQueue = rabbit
	default:
		logger.Fatal().Str("backend", cfg.Queue.Backend).Msg("неизвестный бэкенд очереди")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	messenger := telegram.NewMessenger(botAPI, logger)
	tracker := ack.NewTracker(messenger, logger, cfg.Ack.FirstDelay, cfg.Ack.RepeatDelay)
	reporter := report.NewService(backend, overflowStore, resolver)
	extractor := extract.New(cfg.Routing.PlatformMarker)
	h := bot.NewHandler(messenger, logger, extractor, resolver, dispatchQueue, tracker, overflowStore, durable, reporter)

	consumer := dispatch.NewConsumer(dispatchQueue, durable, overflowStore, logger, h.OnDelivered)
	go consumer.Run(ctx)

	// Записи, скопившиеся на диске за время простоя, пробуем добрать сразу.
	if restored, failed := overflowStore.Drain(ctx, durable); restored+failed > 0 {
		logger.Info().Int("restored", restored).Int("failed", failed).Msg("дренаж дисковой очереди на старте")
	}

	srv := httpserver.NewServer(logger, reporter, overflowStore, durable)
	if cfg.Telegram.WebhookURL != "" {
		srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})
	} else {
		go pollUpdates(ctx, botAPI, h)
	}
	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	logger.Info().Msg("🚀 Бот запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")

	cancel()
	botAPI.StopReceivingUpdates()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	tracker.Shutdown(shutdownCtx)
	_ = srv.Shutdown(shutdownCtx)
}

func pollUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := botAPI.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}
