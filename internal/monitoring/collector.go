package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/batch"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/progress"
	"github.com/yproz/tg-bots/internal/workers"
)

const (
	collectRunName = "Сбор цен СПП"
	maxBodyLog     = 300
)

// CollectAll - плановый запуск сбора.
func (s *Service) CollectAll(ctx context.Context) error {
	return s.CollectRun(ctx, progress.NewID())
}

// CollectRun обходит клиентов с ключом парсера и их аккаунты. Аккаунты
// обрабатываются параллельно в пуле, пакеты одного аккаунта - по очереди.
func (s *Service) CollectRun(ctx context.Context, runID string) error {
	entry := logger.WithComponentAndFields("monitoring", logger.Fields{"run_id": runID})
	s.tracker.Start(runID, collectRunName)

	listCtx, cancel := s.storeCtx(ctx)
	clients, err := s.store.ListClientsWithParserKey(listCtx)
	cancel()
	if err != nil {
		err = fmt.Errorf("listing clients: %w", err)
		s.tracker.Complete(runID, err.Error())
		return err
	}

	var tasks []workers.Task
	for _, client := range clients {
		accCtx, cancel := s.storeCtx(ctx)
		accounts, err := s.store.ListAccounts(accCtx, client.ID)
		cancel()
		if err != nil {
			entry.WithError(err).WithField("client", client.ID).Error("Не удалось получить аккаунты клиента")
			s.tracker.Warn(runID, fmt.Sprintf("клиент %s: не удалось получить аккаунты", client.ID))
			continue
		}
		client := client
		for _, account := range accounts {
			account := account
			tasks = append(tasks, func(ctx context.Context) error {
				return s.collectAccount(ctx, runID, client, account)
			})
		}
	}

	entry.WithFields(logger.Fields{"clients": len(clients), "accounts": len(tasks)}).Info("Запуск сбора цен")

	failed := 0
	for _, err := range s.pool.Run(ctx, tasks) {
		if err != nil {
			failed++
		}
	}

	if ctx.Err() != nil {
		s.tracker.Complete(runID, ctx.Err().Error())
		return ctx.Err()
	}

	var runErr string
	if failed > 0 && failed == len(tasks) {
		runErr = fmt.Sprintf("все аккаунты (%d) завершились с ошибкой", failed)
	}
	s.tracker.Complete(runID, runErr)
	entry.WithFields(logger.Fields{"accounts": len(tasks), "failed": failed}).Info("Сбор цен завершен")
	return nil
}

// collectAccount отправляет товары аккаунта пакетами. Каждый принятый пакет
// сохраняется отдельной транзакцией.
func (s *Service) collectAccount(ctx context.Context, runID string, client models.Client, account models.Account) error {
	entry := logger.WithComponentAndFields("monitoring", logger.Fields{
		"run_id":  runID,
		"client":  client.ID,
		"market":  account.Market,
		"account": account.AccountID,
	})

	listCtx, cancel := s.storeCtx(ctx)
	products, err := s.store.ListProducts(listCtx, client.ID, account.ID)
	cancel()
	if err != nil {
		entry.WithError(err).Error("Не удалось получить товары аккаунта")
		s.tracker.Warn(runID, fmt.Sprintf("%s/%s: не удалось получить товары", client.ID, account.AccountID))
		return fmt.Errorf("listing products: %w", err)
	}
	if len(products) == 0 {
		entry.Info("У аккаунта нет товаров, пропускаем")
		return nil
	}

	plan := batch.NewPlan(len(products), s.opts.BatchSize, s.opts.BatchDelay)
	entry.WithFields(logger.Fields{
		"products":   plan.TotalProducts,
		"batch_size": plan.BatchSize,
		"batches":    plan.TotalBatches,
		"delay":      plan.EstimatedDelay.String(),
	}).Info("План отправки пакетов")
	s.tracker.Plan(runID, plan.TotalBatches, plan.TotalProducts)

	it := s.builder.Batches(products, account, plan.BatchSize)
	accepted, first := 0, true
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		if !first {
			if err := sleepContext(ctx, s.opts.BatchDelay); err != nil {
				return err
			}
		}
		first = false

		if err := s.submitBatch(ctx, client, account, b); err != nil {
			entry.WithError(err).WithField("task_id", b.TaskID).Warn("Пакет не принят")
			s.tracker.BatchSent(runID, false, fmt.Sprintf("%s: %v", b.TaskID, err))
			continue
		}
		accepted++
		s.tracker.BatchSent(runID, true, "")
	}

	if accepted == 0 {
		return fmt.Errorf("no batches accepted for %s/%s", client.ID, account.AccountID)
	}
	return nil
}

// submitBatch снимает цены маркетплейса, отправляет пакет в парсер и при
// ответе 200 сохраняет ожидающий заказ с предварительными результатами.
func (s *Service) submitBatch(ctx context.Context, client models.Client, account models.Account, b batch.Batch) error {
	prices := s.prices.FetchPrices(ctx, account, b.Codes())

	status, body, err := s.parser.Submit(ctx, client, account, b)
	if err != nil {
		return fmt.Errorf("submitting batch: %w", err)
	}
	if status != http.StatusOK {
		return app_errors.Transient("submit batch",
			fmt.Errorf("parser returned status %d: %s", status, truncate(body, maxBodyLog)))
	}

	now := s.now().UTC()
	order := models.Order{
		ClientID:  client.ID,
		TaskID:    b.TaskID,
		Region:    account.Region,
		Market:    account.Market,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	results := make([]models.Result, 0, len(b.Items))
	for _, item := range b.Items {
		var link *string
		if len(item.Linkset) > 0 {
			l := item.Linkset[0]
			link = &l
		}
		results = append(results, models.Result{
			ClientID:    client.ID,
			TaskID:      b.TaskID,
			ProductID:   item.ProductID,
			AccountID:   account.ID,
			ProductCode: item.Code,
			ProductName: item.Name,
			ProductLink: link,
			// нет цены от API - пишем 0
			MarketPrice: decimal.NewFromInt(int64(prices[item.Code])),
			Timestamp:   now,
		})
	}

	saveCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.SaveOrderWithResults(saveCtx, order, results); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return app_errors.Transient("save order", err)
		}
		return fmt.Errorf("saving order %s: %w", b.TaskID, err)
	}

	logger.WithComponentAndFields("monitoring", logger.Fields{
		"client":  client.ID,
		"task_id": b.TaskID,
		"items":   len(results),
	}).Info("Заказ отправлен в парсер и сохранен")
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
