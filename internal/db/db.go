package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolation - код ошибки Postgres при нарушении уникального ограничения.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    group_chat_id BIGINT NOT NULL DEFAULT 0,
    parser_api_key TEXT,
    market_price_field TEXT,
    showcase_price_field TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
    id SERIAL PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    market TEXT NOT NULL,
    account_id TEXT NOT NULL,
    api_key TEXT NOT NULL,
    region TEXT NOT NULL,
    CONSTRAINT uq_account UNIQUE (client_id, market, account_id)
);

ALTER TABLE accounts ADD COLUMN IF NOT EXISTS ozon_client_id TEXT;
ALTER TABLE accounts ADD COLUMN IF NOT EXISTS topic_id BIGINT;

CREATE TABLE IF NOT EXISTS products (
    id SERIAL PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    product_code TEXT NOT NULL,
    product_name TEXT NOT NULL,
    product_link TEXT,
    CONSTRAINT uq_product UNIQUE (account_id, product_code)
);

CREATE TABLE IF NOT EXISTS orders (
    id BIGSERIAL PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    task_id TEXT NOT NULL,
    region TEXT NOT NULL,
    market TEXT NOT NULL,
    status TEXT NOT NULL,
    report_url TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    CONSTRAINT uq_order UNIQUE (task_id)
);

CREATE INDEX IF NOT EXISTS idx_orders_client_status ON orders(client_id, status);

CREATE TABLE IF NOT EXISTS results (
    id BIGSERIAL PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    task_id TEXT NOT NULL,
    product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    product_code TEXT NOT NULL,
    product_name TEXT NOT NULL,
    product_link TEXT,
    market_price NUMERIC,
    showcase_price NUMERIC,
    timestamp TIMESTAMP NOT NULL,
    CONSTRAINT uq_result UNIQUE (client_id, task_id, product_code)
);

CREATE INDEX IF NOT EXISTS idx_results_client_time ON results(client_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_results_code_time ON results(product_code, timestamp DESC);
`

// Store - доступ к таблицам мониторинга СПП поверх sqlx.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect открывает пул соединений с Postgres.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	database, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return database, nil
}

func InitDB(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initializing database schema: %w", err)
	}
	return nil
}
