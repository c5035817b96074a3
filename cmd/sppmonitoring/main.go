package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yproz/tg-bots/internal/api"
	"github.com/yproz/tg-bots/internal/cache"
	"github.com/yproz/tg-bots/internal/catalog"
	"github.com/yproz/tg-bots/internal/config"
	"github.com/yproz/tg-bots/internal/db"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/monitoring"
	"github.com/yproz/tg-bots/internal/parser"
	"github.com/yproz/tg-bots/internal/progress"
	"github.com/yproz/tg-bots/internal/summary"
	"github.com/yproz/tg-bots/internal/telegram"
	"github.com/yproz/tg-bots/internal/telegram/report"
)

// dedupStore - хранилище отметок об отправке сводок и блокировок.
type dedupStore interface {
	summary.SentMarker
	summary.Locker
	Close() error
}

func main() {
	// Получаем настройки из переменных окружения
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logCloser, err := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		Dir:        cfg.LogDir,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		JSON:       cfg.LogJSON,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	entry := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.PGConnString)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.InitDB(ctx, database); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	store := db.NewStore(database)

	dedup := newDedupStore(ctx, cfg)
	defer dedup.Close()

	botAPI, err := telegram.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("Failed to create telegram bot: %v", err)
	}

	tracker := progress.NewTracker(100)
	engine := summary.NewEngine(store, dedup, dedup, telegram.NewNotifier(botAPI), cfg.SummaryLocation)
	prices := api.NewPriceAdapter(&http.Client{Timeout: cfg.MarketTimeout}, cfg.TestMode)
	gateway := parser.NewGateway(&http.Client{Timeout: cfg.ParserTimeout}, cfg.ParserBaseURL, cfg.TestMode)

	service := monitoring.NewService(store, prices, gateway, engine, tracker, monitoring.OptionsFromConfig(cfg))
	defer service.Close()

	bot := telegram.NewBot(botAPI, telegram.Deps{
		Store:          store,
		Exporter:       report.NewExporter(store, cfg.SummaryLocation),
		Importer:       catalog.NewImporter(store),
		Pipeline:       service,
		Tracker:        tracker,
		AllowedUserIDs: cfg.AllowedUserIDs,
		Location:       cfg.SummaryLocation,
	})

	scheduler := monitoring.NewScheduler(service, cfg.CollectSchedule, cfg.CheckSchedule)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	entry.WithFields(logger.Fields{
		"test_mode":  cfg.TestMode,
		"batch_size": cfg.BatchSize,
		"workers":    cfg.WorkerCount,
	}).Info("Starting SPP monitoring service")

	// Блокируется до сигнала завершения
	bot.StartBot(ctx)

	entry.Info("Завершение работы...")
	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		entry.Info("Сервис остановлен")
	case <-time.After(30 * time.Second):
		entry.Warn("Задачи планировщика не завершились за 30 секунд")
	}
}

// newDedupStore подключает Redis, если он задан, иначе хранит отметки в памяти процесса.
func newDedupStore(ctx context.Context, cfg config.Config) dedupStore {
	if cfg.RedisAddress == "" {
		logger.WithComponent("main").Info("REDIS_ADDRESS не задан, отметки о сводках хранятся в памяти")
		return cache.NewMemory()
	}

	r, err := cache.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.WithComponent("main").WithError(err).Warn("Redis недоступен, используется память процесса")
		return cache.NewMemory()
	}
	return r
}
