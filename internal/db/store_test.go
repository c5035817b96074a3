package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(fmt.Errorf("plain")))
}

// Требует живой Postgres: PG_TEST_CONN_STRING=postgres://... go test ./internal/db
func connectTestStore(t *testing.T) *Store {
	dsn := os.Getenv("PG_TEST_CONN_STRING")
	if dsn == "" {
		t.Skip("PG_TEST_CONN_STRING не задан")
	}
	ctx := context.Background()
	database, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, InitDB(ctx, database))
	// схема создается идемпотентно
	require.NoError(t, InitDB(ctx, database))
	return NewStore(database)
}

// seedCatalog создает клиента с одним аккаунтом Ozon и товарами с указанными кодами.
func seedCatalog(t *testing.T, s *Store, codes ...string) (models.Client, models.Account, []models.Product) {
	ctx := context.Background()
	key := "key-" + uuid.NewString()
	client := models.Client{ID: "C-" + uuid.NewString(), Name: "Test", ParserAPIKey: &key}
	require.NoError(t, s.UpsertClient(ctx, client))

	account := models.Account{
		ClientID: client.ID, Market: models.MarketOzon, AccountID: uuid.NewString(),
		APIKey: "api", Region: "Москва",
	}
	require.NoError(t, s.UpsertAccount(ctx, account))
	id, err := s.FindAccountID(ctx, client.ID, account.Market, account.AccountID)
	require.NoError(t, err)
	account.ID = id

	for _, code := range codes {
		require.NoError(t, s.UpsertProduct(ctx, models.Product{
			ClientID: client.ID, AccountID: id, ProductCode: code, ProductName: "Товар " + code,
		}))
	}
	products, err := s.ListProducts(ctx, client.ID, id)
	require.NoError(t, err)
	return client, account, products
}

func TestStore_CatalogUpsertIsIdempotent(t *testing.T) {
	s := connectTestStore(t)
	ctx := context.Background()
	client, account, products := seedCatalog(t, s, "P1")
	require.Len(t, products, 1)

	// повторный импорт обновляет строки, а не дублирует их
	account.Region = "Казань"
	require.NoError(t, s.UpsertAccount(ctx, account))
	link := "https://ozon.ru/p1"
	require.NoError(t, s.UpsertProduct(ctx, models.Product{
		ClientID: client.ID, AccountID: account.ID, ProductCode: "P1", ProductName: "Новое имя", ProductLink: &link,
	}))

	accounts, err := s.ListAccounts(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Казань", accounts[0].Region)

	products, err = s.ListProducts(ctx, client.ID, account.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Новое имя", products[0].ProductName)
	assert.Equal(t, link, products[0].Link())

	_, err = s.FindAccountID(ctx, client.ID, models.MarketWB, account.AccountID)
	assert.ErrorIs(t, err, app_errors.ErrNotFound)
}

func TestStore_OrderLifecycle(t *testing.T) {
	s := connectTestStore(t)
	ctx := context.Background()
	client, account, products := seedCatalog(t, s, "P1", "P2")
	require.Len(t, products, 2)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	order := models.Order{
		ClientID: client.ID, TaskID: uuid.NewString(), Region: account.Region, Market: account.Market,
		Status: models.OrderStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	results := make([]models.Result, 0, len(products))
	for _, p := range products {
		results = append(results, models.Result{
			ClientID: client.ID, TaskID: order.TaskID, ProductID: p.ID, AccountID: account.ID,
			ProductCode: p.ProductCode, ProductName: p.ProductName, MarketPrice: decimal.NewFromInt(100), Timestamp: now,
		})
	}
	require.NoError(t, s.SaveOrderWithResults(ctx, order, results))

	err := s.SaveOrderWithResults(ctx, order, nil)
	require.Error(t, err)
	assert.Equal(t, app_errors.KindConflict, app_errors.KindOf(err))

	pending, err := s.ListPendingOrders(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.TaskID, pending[0].TaskID)

	n, err := s.UpdateShowcasePrice(ctx, client.ID, order.TaskID, "P1", decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.UpdateShowcasePrice(ctx, client.ID, order.TaskID, "UNKNOWN", decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.Zero(t, n)

	done, err := s.CompleteOrder(ctx, order.TaskID, "https://parser/report.json", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, done)
	done, err = s.CompleteOrder(ctx, order.TaskID, "https://parser/other.json", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, done, "completed order is never completed twice")

	pending, err = s.ListPendingOrders(ctx, client.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_LatestResultsPicksNewestPerCode(t *testing.T) {
	s := connectTestStore(t)
	ctx := context.Background()
	client, account, products := seedCatalog(t, s, "P1")
	require.Len(t, products, 1)
	p := products[0]

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	save := func(at time.Time, showcase int64) {
		taskID := uuid.NewString()
		order := models.Order{
			ClientID: client.ID, TaskID: taskID, Region: account.Region, Market: account.Market,
			Status: models.OrderStatusPending, CreatedAt: at, UpdatedAt: at,
		}
		require.NoError(t, s.SaveOrderWithResults(ctx, order, []models.Result{{
			ClientID: client.ID, TaskID: taskID, ProductID: p.ID, AccountID: account.ID,
			ProductCode: p.ProductCode, ProductName: p.ProductName, MarketPrice: decimal.NewFromInt(100), Timestamp: at,
		}}))
		_, err := s.UpdateShowcasePrice(ctx, client.ID, taskID, p.ProductCode, decimal.NewFromInt(showcase))
		require.NoError(t, err)
	}
	save(day.Add(-2*time.Hour), 70)
	save(day.Add(6*time.Hour), 90)
	save(day.Add(14*time.Hour), 85)

	rows, err := s.LatestResults(ctx, client.ID, nil, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ShowcasePrice.Decimal.Equal(decimal.NewFromInt(85)))
	assert.Equal(t, models.MarketOzon, rows[0].Market)

	wb := models.MarketWB
	rows, err = s.LatestResults(ctx, client.ID, &wb, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	prev, err := s.LatestResultsBefore(ctx, client.ID, nil, day)
	require.NoError(t, err)
	require.Len(t, prev, 1)
	assert.True(t, prev[0].ShowcasePrice.Decimal.Equal(decimal.NewFromInt(70)))
}
