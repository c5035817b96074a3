package monitoring

import (
	"context"
	"fmt"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/parser"
)

// CheckAll проверяет ожидающие заказы всех клиентов с ключом парсера и
// возвращает число завершенных заказов. Ошибка одного клиента не прерывает обход.
func (s *Service) CheckAll(ctx context.Context) (int, error) {
	listCtx, cancel := s.storeCtx(ctx)
	clients, err := s.store.ListClientsWithParserKey(listCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("listing clients: %w", err)
	}

	completed := 0
	for _, client := range clients {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		n, err := s.CheckClient(ctx, client)
		if err != nil {
			logger.WithComponentAndFields("monitoring", logger.Fields{"client": client.ID}).
				WithError(err).Warn("Проверка отчетов клиента не удалась")
		}
		completed += n
	}
	return completed, nil
}

func (s *Service) CheckClient(ctx context.Context, client models.Client) (int, error) {
	if !client.HasParserKey() {
		return 0, app_errors.Validation("check client", app_errors.ErrMissingCredentials)
	}
	entry := logger.WithComponentAndFields("monitoring", logger.Fields{"client": client.ID})

	listCtx, cancel := s.storeCtx(ctx)
	orders, err := s.store.ListPendingOrders(listCtx, client.ID)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("listing pending orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	tasks, err := s.parser.LastTasks(ctx, client.ParserKey())
	if err != nil {
		return 0, fmt.Errorf("polling parser tasks: %w", err)
	}

	completed := 0
	for _, order := range orders {
		status, ok := tasks.Find(order.TaskID)
		if !ok || !status.Completed() {
			entry.WithField("task_id", order.TaskID).Debug("Отчет еще не готов")
			continue
		}

		done, err := s.ingestOrder(ctx, client, order, status.ReportURL)
		if err != nil {
			entry.WithError(err).WithField("task_id", order.TaskID).Warn("Не удалось обработать отчет, заказ остается в ожидании")
			continue
		}
		if done {
			completed++
		}
	}
	return completed, nil
}

// ingestOrder переносит цены витрины из отчета в результаты заказа. Заказ
// закрывается, только если обновилась хотя бы одна строка.
func (s *Service) ingestOrder(ctx context.Context, client models.Client, order models.Order, reportURL string) (bool, error) {
	entry := logger.WithComponentAndFields("monitoring", logger.Fields{
		"client":  client.ID,
		"task_id": order.TaskID,
	})

	report, err := s.parser.FetchReport(ctx, reportURL)
	if err != nil {
		return false, fmt.Errorf("fetching report: %w", err)
	}

	var updated int64
	for _, p := range parser.ExtractPrices(report) {
		updCtx, cancel := s.storeCtx(ctx)
		n, err := s.store.UpdateShowcasePrice(updCtx, client.ID, order.TaskID, p.Code, p.Price)
		cancel()
		if err != nil {
			entry.WithError(err).WithField("code", p.Code).Warn("Не удалось сохранить цену витрины")
			continue
		}
		updated += n
	}

	if updated == 0 {
		entry.Warn("Отчет не обновил ни одной строки, заказ остается в ожидании")
		return false, nil
	}

	doneCtx, cancel := s.storeCtx(ctx)
	ok, err := s.store.CompleteOrder(doneCtx, order.TaskID, reportURL, s.now().UTC())
	cancel()
	if err != nil {
		return false, fmt.Errorf("completing order: %w", err)
	}
	if !ok {
		entry.Info("Заказ уже завершен")
		return false, nil
	}
	entry.WithField("updated", updated).Info("Заказ завершен")

	if s.summary != nil {
		sent, err := s.summary.Send(ctx, client.ID, true)
		if err != nil {
			entry.WithError(err).Warn("Не удалось отправить сводку")
		} else {
			entry.WithField("messages", sent).Info("Сводка отправлена")
		}
	}
	return true, nil
}
