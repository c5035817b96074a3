package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

const (
	DefaultOzonBaseURL = "https://api-seller.ozon.ru"
	DefaultWBBaseURL   = "https://discounts-prices-api.wildberries.ru"

	ozonChunkSize = 1000
	wbPageLimit   = 1000
	wbPageDelay   = 100 * time.Millisecond
	wbMaxPages    = 500

	testOzonPrice = 499
	testWBPrice   = 9999
)

// PriceAdapter получает цены продавца из API маркетплейсов.
// Любая ошибка сети или формата приводит к пустому (или частичному) результату,
// сбор пакета при этом не прерывается.
type PriceAdapter struct {
	client      *http.Client
	ozonLimiter *rate.Limiter
	wbLimiter   *rate.Limiter

	ozonBaseURL string
	wbBaseURL   string
	pageDelay   time.Duration
	testMode    bool
}

type Option func(*PriceAdapter)

// WithBaseURLs подменяет адреса API, используется в тестах.
func WithBaseURLs(ozon, wb string) Option {
	return func(a *PriceAdapter) {
		if ozon != "" {
			a.ozonBaseURL = ozon
		}
		if wb != "" {
			a.wbBaseURL = wb
		}
	}
}

func WithPageDelay(d time.Duration) Option {
	return func(a *PriceAdapter) {
		a.pageDelay = d
	}
}

func NewPriceAdapter(client *http.Client, testMode bool, opts ...Option) *PriceAdapter {
	a := &PriceAdapter{
		client:      client,
		ozonLimiter: rate.NewLimiter(rate.Every(time.Second/10), 10),
		wbLimiter:   rate.NewLimiter(rate.Every(600*time.Millisecond), 5),
		ozonBaseURL: DefaultOzonBaseURL,
		wbBaseURL:   DefaultWBBaseURL,
		pageDelay:   wbPageDelay,
		testMode:    testMode,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchPrices возвращает цену продавца по каждому найденному коду товара.
// Коды без цены в ответе отсутствуют.
func (a *PriceAdapter) FetchPrices(ctx context.Context, account models.Account, codes []string) map[string]int {
	if len(codes) == 0 {
		return map[string]int{}
	}

	if a.testMode {
		return testPrices(account.Market, codes)
	}

	entry := logger.WithComponentAndFields("price_adapter", logger.Fields{
		"market":  account.Market,
		"account": account.AccountID,
		"codes":   len(codes),
	})

	var (
		prices map[string]int
		err    error
	)
	switch account.Market {
	case models.MarketOzon:
		prices, err = a.fetchOzon(ctx, account, codes)
	case models.MarketWB:
		prices, err = a.fetchWB(ctx, account, codes)
	default:
		entry.Warn("Неизвестный маркетплейс, цены не запрашиваются")
		return map[string]int{}
	}

	if err != nil {
		entry.WithError(err).Warnf("Ошибка получения цен, найдено %d из %d", len(prices), len(codes))
	}
	if prices == nil {
		prices = map[string]int{}
	}
	return prices
}

func testPrices(market models.Market, codes []string) map[string]int {
	price := testWBPrice
	if market == models.MarketOzon {
		price = testOzonPrice
	}
	prices := make(map[string]int, len(codes))
	for _, code := range codes {
		prices[code] = price
	}
	return prices
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
