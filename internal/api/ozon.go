package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

// fetchOzon запрашивает /v5/product/info/prices кусками не больше ozonChunkSize кодов.
// Неудачный кусок логируется и пропускается, остальные запрашиваются. Возвращается
// последняя ошибка вместе с полученными ценами.
func (a *PriceAdapter) fetchOzon(ctx context.Context, account models.Account, codes []string) (map[string]int, error) {
	if account.OzonClientID == nil || *account.OzonClientID == "" || account.APIKey == "" {
		return nil, app_errors.Validation("ozon prices", app_errors.ErrMissingCredentials)
	}

	prices := make(map[string]int, len(codes))
	var lastErr error
	for start := 0; start < len(codes); start += ozonChunkSize {
		end := start + ozonChunkSize
		if end > len(codes) {
			end = len(codes)
		}
		if err := a.fetchOzonChunk(ctx, account, codes[start:end], prices); err != nil {
			if ctx.Err() != nil {
				return prices, err
			}
			logger.WithComponentAndFields("price_adapter", logger.Fields{
				"account": account.AccountID,
				"offset":  start,
				"codes":   end - start,
			}).WithError(err).Warn("Не удалось получить цены Ozon для части кодов")
			lastErr = err
		}
	}
	return prices, lastErr
}

func (a *PriceAdapter) fetchOzonChunk(ctx context.Context, account models.Account, codes []string, prices map[string]int) error {
	if err := a.ozonLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", app_errors.ErrRateLimiter, err)
	}

	body, err := json.Marshal(models.OzonPricesRequest{
		Filter: models.OzonPriceFilter{OfferID: codes, Visibility: "ALL"},
		Limit:  ozonChunkSize,
	})
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ozonBaseURL+"/v5/product/info/prices", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Client-Id", *account.OzonClientID)
	req.Header.Set("Api-Key", account.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return app_errors.Transient("ozon prices", fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return app_errors.Transient("ozon prices", fmt.Errorf("unexpected status code: %s", resp.Status))
	}

	var pricesResp models.OzonPricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&pricesResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	for _, item := range pricesResp.Items {
		price, ok := models.ParsePriceJSON(item.Price.MarketingSellerPrice)
		if !ok {
			price, ok = models.ParsePriceJSON(item.Price.Price)
		}
		if !ok {
			continue
		}
		prices[item.OfferID] = int(price.IntPart())
	}
	return nil
}
