package monitoring

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/batch"
	"github.com/yproz/tg-bots/internal/config"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/parser"
	"github.com/yproz/tg-bots/internal/progress"
	"github.com/yproz/tg-bots/internal/workers"
)

// Store - часть хранилища, нужная сбору и проверке отчетов.
type Store interface {
	ListClientsWithParserKey(ctx context.Context) ([]models.Client, error)
	ListAccounts(ctx context.Context, clientID string) ([]models.Account, error)
	ListProducts(ctx context.Context, clientID string, accountID int64) ([]models.Product, error)
	SaveOrderWithResults(ctx context.Context, order models.Order, results []models.Result) error
	ListPendingOrders(ctx context.Context, clientID string) ([]models.Order, error)
	UpdateShowcasePrice(ctx context.Context, clientID, taskID, productCode string, price decimal.Decimal) (int64, error)
	CompleteOrder(ctx context.Context, taskID, reportURL string, at time.Time) (bool, error)
}

type PriceFetcher interface {
	FetchPrices(ctx context.Context, account models.Account, codes []string) map[string]int
}

type Parser interface {
	Submit(ctx context.Context, client models.Client, account models.Account, b batch.Batch) (int, string, error)
	LastTasks(ctx context.Context, apiKey string) (parser.Tasks, error)
	FetchReport(ctx context.Context, url string) (parser.Report, error)
}

// SummarySender - движок ежедневной сводки.
type SummarySender interface {
	Send(ctx context.Context, clientID string, force bool) (int, error)
}

type Options struct {
	BatchSize    int
	BatchDelay   time.Duration
	WorkerCount  int
	StoreTimeout time.Duration
}

// OptionsFromConfig переносит параметры сбора из конфигурации.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:    cfg.BatchSize,
		BatchDelay:   cfg.BatchDelay,
		WorkerCount:  cfg.WorkerCount,
		StoreTimeout: cfg.StoreTimeout,
	}
}

// Service собирает цены в заказы парсера и разбирает готовые отчеты.
type Service struct {
	store   Store
	prices  PriceFetcher
	parser  Parser
	summary SummarySender
	tracker *progress.Tracker
	builder *batch.Builder
	pool    *workers.Pool
	opts    Options
	now     func() time.Time
}

func NewService(store Store, prices PriceFetcher, p Parser, summary SummarySender, tracker *progress.Tracker, opts Options) *Service {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = config.WorkerCount
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = config.StoreTimeout
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if tracker == nil {
		tracker = progress.NewTracker(0)
	}

	s := &Service{
		store:   store,
		prices:  prices,
		parser:  p,
		summary: summary,
		tracker: tracker,
		pool:    workers.NewPool(opts.WorkerCount),
		opts:    opts,
		now:     time.Now,
	}
	s.builder = batch.NewBuilder(batch.NewTaskIDGenerator(), func() time.Time { return s.now() })
	return s
}

// Close останавливает пул воркеров.
func (s *Service) Close() {
	s.pool.Shutdown()
}

// storeCtx ограничивает одно обращение к базе.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
