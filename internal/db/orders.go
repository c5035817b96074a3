package db

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/models"
)

// SaveOrderWithResults записывает заказ и снимки цен одной транзакцией.
// Вызывается только после того, как парсер принял пакет.
func (s *Store) SaveOrderWithResults(ctx context.Context, order models.Order, results []models.Result) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (client_id, task_id, region, market, status, report_url, created_at, updated_at)
		VALUES (:client_id, :task_id, :region, :market, :status, :report_url, :created_at, :updated_at)`, order)
	if err != nil {
		if isUniqueViolation(err) {
			return app_errors.New(app_errors.KindConflict, "save order", fmt.Errorf("task %s already saved: %w", order.TaskID, err))
		}
		return fmt.Errorf("inserting order %s: %w", order.TaskID, err)
	}

	for _, r := range results {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO results (client_id, task_id, product_id, account_id, product_code, product_name,
				product_link, market_price, showcase_price, timestamp)
			VALUES (:client_id, :task_id, :product_id, :account_id, :product_code, :product_name,
				:product_link, :market_price, :showcase_price, :timestamp)`, r)
		if err != nil {
			return fmt.Errorf("inserting result %s/%s: %w", r.TaskID, r.ProductCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPendingOrders возвращает только заказы в статусе pending: завершенные
// заказы больше никогда не опрашиваются.
func (s *Store) ListPendingOrders(ctx context.Context, clientID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT id, client_id, task_id, region, market, status, report_url, created_at, updated_at
		FROM orders WHERE client_id = $1 AND status = $2 ORDER BY created_at`,
		clientID, models.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("fetching pending orders for %s: %w", clientID, err)
	}
	return orders, nil
}

func (s *Store) UpdateShowcasePrice(ctx context.Context, clientID, taskID, productCode string, price decimal.Decimal) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE results SET showcase_price = $4
		WHERE client_id = $1 AND task_id = $2 AND product_code = $3`,
		clientID, taskID, productCode, price)
	if err != nil {
		return 0, fmt.Errorf("updating showcase price for %s: %w", productCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// CompleteOrder переводит pending-заказ в completed. Повторный вызов ничего не меняет
// и возвращает false.
func (s *Store) CompleteOrder(ctx context.Context, taskID, reportURL string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, report_url = $3, updated_at = $4
		WHERE task_id = $1 AND status = $5`,
		taskID, models.OrderStatusCompleted, reportURL, at, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("completing order %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}
