package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/batch"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

const (
	DefaultBaseURL  = "https://parser.market/wp-json/client-api/v1"
	DefaultTimeout  = 30 * time.Second
	lastTasksLimit  = 50
	TestModeMessage = "TEST MODE: simulated response"
)

// Gateway - клиент асинхронного сервиса парсинга витрин.
type Gateway struct {
	client   *http.Client
	baseURL  string
	testMode bool
}

func NewGateway(client *http.Client, baseURL string, testMode bool) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Gateway{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		testMode: testMode,
	}
}

// Submit отправляет пакет в /send-order под task_id пакета. Ошибка транспорта
// возвращается со статусом 0; сохранять заказ вызывающий код должен только при 200.
func (g *Gateway) Submit(ctx context.Context, client models.Client, account models.Account, b batch.Batch) (int, string, error) {
	entry := logger.WithComponentAndFields("parser", logger.Fields{
		"client":  client.ID,
		"task_id": b.TaskID,
		"items":   len(b.Items),
	})

	if g.testMode {
		entry.Info("TEST MODE: заказ в парсер не отправляется")
		return http.StatusOK, TestModeMessage, nil
	}

	body, err := json.Marshal(models.SendOrderRequest{
		APIKey:    client.ParserKey(),
		RegionID:  account.Region,
		Market:    account.Market,
		UserLabel: b.TaskID,
		Products:  b.ParserProducts(),
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/send-order", bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, "", app_errors.Transient("send order", fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("reading response: %w", err)
	}

	entry.WithField("status", resp.StatusCode).Debug("Ответ парсера на отправку заказа")
	return resp.StatusCode, string(respBody), nil
}

// LastTasks запрашивает 50 последних задач клиента и нормализует ответ.
func (g *Gateway) LastTasks(ctx context.Context, apiKey string) (Tasks, error) {
	body, err := json.Marshal(models.LastTasksRequest{APIKey: apiKey, Limit: lastTasksLimit})
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/get-last50", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, app_errors.Transient("get last tasks", fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, app_errors.Transient("get last tasks", fmt.Errorf("unexpected status code: %s", resp.Status))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, app_errors.Transient("get last tasks", fmt.Errorf("reading response: %w", err))
	}

	return ParseTasks(raw)
}
