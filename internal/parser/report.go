package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

// Offer - предложение из отчета. Цены остаются сырыми, они бывают строкой или числом.
type Offer struct {
	Price      gjson.Result
	PromoPrice gjson.Result
}

type ReportItem struct {
	Code   string
	Offers []Offer
}

type Report struct {
	Items []ReportItem
}

type ReportPrice struct {
	Code  string
	Price decimal.Decimal
}

// FetchReport скачивает JSON-отчет задачи по report_json.
func (g *Gateway) FetchReport(ctx context.Context, url string) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Report{}, app_errors.Transient("fetch report", fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, app_errors.Transient("fetch report", fmt.Errorf("unexpected status code: %s", resp.Status))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, app_errors.Transient("fetch report", fmt.Errorf("reading response: %w", err))
	}

	return ParseReport(raw)
}

func ParseReport(raw []byte) (Report, error) {
	if !gjson.ValidBytes(raw) {
		return Report{}, app_errors.Validation("parse report", fmt.Errorf("%w: invalid json", app_errors.ErrUnrecognizedFormat))
	}

	var report Report
	gjson.GetBytes(raw, "data").ForEach(func(_, item gjson.Result) bool {
		ri := ReportItem{Code: item.Get("code").String()}
		item.Get("offers").ForEach(func(_, offer gjson.Result) bool {
			ri.Offers = append(ri.Offers, Offer{
				Price:      offer.Get("Price"),
				PromoPrice: offer.Get("PromoPrice"),
			})
			return true
		})
		report.Items = append(report.Items, ri)
		return true
	})
	return report, nil
}

// ExtractPrices берет первое предложение каждого товара: PromoPrice, если она валидна,
// иначе Price. Товары без валидной цены пропускаются.
func ExtractPrices(report Report) []ReportPrice {
	entry := logger.WithComponent("parser")

	prices := make([]ReportPrice, 0, len(report.Items))
	for _, item := range report.Items {
		if item.Code == "" || len(item.Offers) == 0 {
			continue
		}
		offer := item.Offers[0]

		price, ok := models.ParsePriceResult(offer.PromoPrice)
		if !ok {
			price, ok = models.ParsePriceResult(offer.Price)
		}
		if !ok {
			entry.WithField("code", item.Code).Debug("Пропускаем товар: отсутствует валидная цена")
			continue
		}
		prices = append(prices, ReportPrice{Code: item.Code, Price: price})
	}
	return prices
}
