package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yproz/tg-bots/internal/models"
)

const snapshotSelect = `
	SELECT DISTINCT ON (r.product_code)
		r.product_code, r.product_name, r.product_link,
		r.market_price, r.showcase_price, r.timestamp,
		a.market
	FROM results r
	JOIN accounts a ON r.account_id = a.id
	WHERE r.client_id = $1`

// buildSnapshotQuery собирает запрос "последняя строка на товар" с фильтром
// по маркетплейсу, если он задан.
func buildSnapshotQuery(market *models.Market, timeFilter string, args []interface{}) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(snapshotSelect)
	sb.WriteString(timeFilter)
	if market != nil {
		args = append(args, *market)
		fmt.Fprintf(&sb, " AND a.market = $%d", len(args))
	}
	sb.WriteString(" ORDER BY r.product_code, r.timestamp DESC")
	return sb.String(), args
}

// LatestResults - последний снимок по каждому товару в интервале [from, to).
func (s *Store) LatestResults(ctx context.Context, clientID string, market *models.Market, from, to time.Time) ([]models.SnapshotRow, error) {
	query, args := buildSnapshotQuery(market,
		" AND r.timestamp >= $2 AND r.timestamp < $3",
		[]interface{}{clientID, from, to})

	var rows []models.SnapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetching latest results for %s: %w", clientID, err)
	}
	return rows, nil
}

// LatestResultsBefore - последний снимок по каждому товару строго раньше before,
// независимо от календарного дня.
func (s *Store) LatestResultsBefore(ctx context.Context, clientID string, market *models.Market, before time.Time) ([]models.SnapshotRow, error) {
	query, args := buildSnapshotQuery(market,
		" AND r.timestamp < $2",
		[]interface{}{clientID, before})

	var rows []models.SnapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fetching previous results for %s: %w", clientID, err)
	}
	return rows, nil
}
