package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/models"
)

// fetchWB листает /api/v2/list/goods/filter, пока не найдены все коды,
// страница не окажется пустой или неполной.
func (a *PriceAdapter) fetchWB(ctx context.Context, account models.Account, codes []string) (map[string]int, error) {
	if account.APIKey == "" {
		return nil, app_errors.Validation("wb prices", app_errors.ErrMissingCredentials)
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}

	prices := make(map[string]int, len(codes))
	for page := 0; page < wbMaxPages; page++ {
		if page > 0 {
			if err := sleepContext(ctx, a.pageDelay); err != nil {
				return prices, err
			}
		}

		resp, err := a.getGoodsPage(ctx, account.APIKey, page*wbPageLimit)
		if err != nil {
			return prices, err
		}

		goods := resp.Data.ListGoods
		for _, good := range goods {
			code := strings.TrimSpace(good.VendorCode)
			if _, ok := wanted[code]; !ok {
				continue
			}
			if _, done := prices[code]; done || len(good.Sizes) == 0 {
				continue
			}
			price := int(good.Sizes[0].DiscountedPrice)
			if price <= 0 {
				continue
			}
			prices[code] = price
		}

		if len(prices) == len(wanted) || len(goods) == 0 || len(goods) < wbPageLimit {
			break
		}
	}
	return prices, nil
}

func (a *PriceAdapter) getGoodsPage(ctx context.Context, apiKey string, offset int) (*models.GoodsPricesResponse, error) {
	if err := a.wbLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", app_errors.ErrRateLimiter, err)
	}

	apiURL := fmt.Sprintf("%s/api/v2/list/goods/filter?limit=%d&offset=%d", a.wbBaseURL, wbPageLimit, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	// Ключ передается как есть, без префикса Bearer.
	req.Header.Set("Authorization", apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, app_errors.Transient("wb prices", fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, app_errors.Transient("wb prices", fmt.Errorf("unexpected status code: %s", resp.Status))
	}

	var goods models.GoodsPricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&goods); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &goods, nil
}
