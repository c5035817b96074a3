package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/models"
)

func (s *Store) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	err := s.db.GetContext(ctx, &client, `
		SELECT id, name, group_chat_id, parser_api_key, market_price_field, showcase_price_field
		FROM clients WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", id, app_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching client %s: %w", id, err)
	}
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := s.db.SelectContext(ctx, &clients, `
		SELECT id, name, group_chat_id, parser_api_key, market_price_field, showcase_price_field
		FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetching clients: %w", err)
	}
	return clients, nil
}

// ListClientsWithParserKey возвращает клиентов, для которых можно отправлять заказы в парсер.
func (s *Store) ListClientsWithParserKey(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := s.db.SelectContext(ctx, &clients, `
		SELECT id, name, group_chat_id, parser_api_key, market_price_field, showcase_price_field
		FROM clients
		WHERE parser_api_key IS NOT NULL AND parser_api_key <> ''
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetching clients with parser key: %w", err)
	}
	return clients, nil
}

// UpsertClient создает клиента или обновляет имя, чат и ключ парсера.
func (s *Store) UpsertClient(ctx context.Context, c models.Client) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO clients (id, name, group_chat_id, parser_api_key)
		VALUES (:id, :name, :group_chat_id, :parser_api_key)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			group_chat_id = EXCLUDED.group_chat_id,
			parser_api_key = EXCLUDED.parser_api_key`, c)
	if err != nil {
		return fmt.Errorf("upserting client %s: %w", c.ID, err)
	}
	return nil
}

// EnsureClient создает клиента-заглушку, если его ещё нет.
func (s *Store) EnsureClient(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, group_chat_id) VALUES ($1, $1, 0)
		ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("ensuring client %s: %w", id, err)
	}
	return nil
}

func (s *Store) UpsertAccount(ctx context.Context, a models.Account) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO accounts (client_id, market, account_id, api_key, region, ozon_client_id)
		VALUES (:client_id, :market, :account_id, :api_key, :region, :ozon_client_id)
		ON CONFLICT (client_id, market, account_id) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			region = EXCLUDED.region,
			ozon_client_id = EXCLUDED.ozon_client_id`, a)
	if err != nil {
		return fmt.Errorf("upserting account %s/%s/%s: %w", a.ClientID, a.Market, a.AccountID, err)
	}
	return nil
}

// SetAccountTopic сохраняет тред уведомлений. Возвращает false, если аккаунт не найден.
func (s *Store) SetAccountTopic(ctx context.Context, accountID string, topicID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET topic_id = $2 WHERE account_id = $1`, accountID, topicID)
	if err != nil {
		return false, fmt.Errorf("updating topic for account %s: %w", accountID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListAccounts(ctx context.Context, clientID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.SelectContext(ctx, &accounts, `
		SELECT id, client_id, market, account_id, api_key, region, ozon_client_id, topic_id
		FROM accounts WHERE client_id = $1 ORDER BY id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching accounts for client %s: %w", clientID, err)
	}
	return accounts, nil
}

// FindAccountID ищет внутренний id аккаунта по ключу (client, market, account_id).
func (s *Store) FindAccountID(ctx context.Context, clientID string, market models.Market, accountID string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		SELECT id FROM accounts WHERE client_id = $1 AND market = $2 AND account_id = $3`,
		clientID, market, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, app_errors.ErrNotFound
		}
		return 0, fmt.Errorf("finding account: %w", err)
	}
	return id, nil
}

func (s *Store) ListProducts(ctx context.Context, clientID string, accountID int64) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, `
		SELECT id, client_id, account_id, product_code, product_name, product_link
		FROM products WHERE client_id = $1 AND account_id = $2 ORDER BY id`, clientID, accountID)
	if err != nil {
		return nil, fmt.Errorf("fetching products for account %d: %w", accountID, err)
	}
	return products, nil
}

// UpsertProduct - повторный импорт того же (account, code) перезаписывает имя, ссылку и клиента.
func (s *Store) UpsertProduct(ctx context.Context, p models.Product) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (client_id, account_id, product_code, product_name, product_link)
		VALUES (:client_id, :account_id, :product_code, :product_name, :product_link)
		ON CONFLICT (account_id, product_code) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			product_link = EXCLUDED.product_link,
			client_id = EXCLUDED.client_id`, p)
	if err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ProductCode, err)
	}
	return nil
}
