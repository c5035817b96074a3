package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/app_errors"
)

// Market - код маркетплейса так, как он хранится в accounts.market.
type Market string

const (
	MarketOzon Market = "ozon"
	MarketWB   Market = "wb"
)

// Markets задаёт порядок обхода маркетплейсов в отчетах.
var Markets = []Market{MarketOzon, MarketWB}

func ParseMarket(s string) (Market, error) {
	switch Market(strings.ToLower(strings.TrimSpace(s))) {
	case MarketOzon:
		return MarketOzon, nil
	case MarketWB:
		return MarketWB, nil
	}
	return "", app_errors.Validation("parse market", fmt.Errorf("%w: %q", app_errors.ErrUnsupportedMarket, s))
}

// Letter возвращает букву маркетплейса для task_id.
func (m Market) Letter() string {
	if m == MarketOzon {
		return "O"
	}
	return "W"
}

func (m Market) DisplayName() string {
	switch m {
	case MarketOzon:
		return "Ozon"
	case MarketWB:
		return "Wildberries"
	}
	return string(m)
}

func (m Market) Emoji() string {
	switch m {
	case MarketOzon:
		return "🟠"
	case MarketWB:
		return "🟣"
	}
	return "📊"
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

type Client struct {
	ID                 string  `db:"id"`
	Name               string  `db:"name"`
	GroupChatID        int64   `db:"group_chat_id"`
	ParserAPIKey       *string `db:"parser_api_key"`
	MarketPriceField   *string `db:"market_price_field"`
	ShowcasePriceField *string `db:"showcase_price_field"`
}

func (c Client) HasParserKey() bool {
	return c.ParserAPIKey != nil && *c.ParserAPIKey != ""
}

func (c Client) ParserKey() string {
	if c.ParserAPIKey == nil {
		return ""
	}
	return *c.ParserAPIKey
}

type Account struct {
	ID           int64   `db:"id"`
	ClientID     string  `db:"client_id"`
	Market       Market  `db:"market"`
	AccountID    string  `db:"account_id"`
	APIKey       string  `db:"api_key"`
	Region       string  `db:"region"`
	OzonClientID *string `db:"ozon_client_id"`
	TopicID      *int64  `db:"topic_id"`
}

type Product struct {
	ID          int64   `db:"id"`
	ClientID    string  `db:"client_id"`
	AccountID   int64   `db:"account_id"`
	ProductCode string  `db:"product_code"`
	ProductName string  `db:"product_name"`
	ProductLink *string `db:"product_link"`
}

func (p Product) Link() string {
	if p.ProductLink == nil {
		return ""
	}
	return *p.ProductLink
}

// Order - одна отправка пакета в парсер.
type Order struct {
	ID        int64     `db:"id"`
	ClientID  string    `db:"client_id"`
	TaskID    string    `db:"task_id"`
	Region    string    `db:"region"`
	Market    Market    `db:"market"`
	Status    string    `db:"status"`
	ReportURL *string   `db:"report_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Result - снимок цены товара в момент отправки пакета.
// showcase_price заполняется позже, при разборе отчета парсера.
type Result struct {
	ID            int64               `db:"id"`
	ClientID      string              `db:"client_id"`
	TaskID        string              `db:"task_id"`
	ProductID     int64               `db:"product_id"`
	AccountID     int64               `db:"account_id"`
	ProductCode   string              `db:"product_code"`
	ProductName   string              `db:"product_name"`
	ProductLink   *string             `db:"product_link"`
	MarketPrice   decimal.Decimal     `db:"market_price"`
	ShowcasePrice decimal.NullDecimal `db:"showcase_price"`
	Timestamp     time.Time           `db:"timestamp"`
}

// SnapshotRow - последняя строка results по товару вместе с маркетплейсом аккаунта.
type SnapshotRow struct {
	ProductCode   string              `db:"product_code"`
	ProductName   string              `db:"product_name"`
	ProductLink   *string             `db:"product_link"`
	MarketPrice   decimal.NullDecimal `db:"market_price"`
	ShowcasePrice decimal.NullDecimal `db:"showcase_price"`
	Timestamp     time.Time           `db:"timestamp"`
	Market        Market              `db:"market"`
}

func (r SnapshotRow) Link() string {
	if r.ProductLink == nil {
		return ""
	}
	return *r.ProductLink
}

// InlineButton - кнопка под сообщением с callback-данными.
type InlineButton struct {
	Text string
	Data string
}
