package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tidwall/gjson"

	"github.com/yproz/tg-bots/internal/logger"
)

const (
	pollTimeoutSec = 30
	pollRetryDelay = 3 * time.Second
)

// botAPI - используемая часть *tgbotapi.BotAPI.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return api, nil
}

// incoming - апдейт вместе с id треда форума. В типах библиотеки
// поля message_thread_id нет, поэтому он читается из сырого JSON.
type incoming struct {
	update   tgbotapi.Update
	threadID int
}

// decodeUpdates разбирает результат getUpdates.
func decodeUpdates(raw json.RawMessage) ([]incoming, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid getUpdates payload")
	}

	items := gjson.ParseBytes(raw).Array()
	out := make([]incoming, 0, len(items))
	for _, item := range items {
		var u tgbotapi.Update
		if err := json.Unmarshal([]byte(item.Raw), &u); err != nil {
			return nil, fmt.Errorf("decoding update: %w", err)
		}
		out = append(out, incoming{update: u, threadID: threadOf(item)})
	}
	return out, nil
}

func threadOf(item gjson.Result) int {
	for _, path := range []string{"message", "callback_query.message"} {
		msg := item.Get(path)
		if !msg.Exists() {
			continue
		}
		if msg.Get("is_topic_message").Bool() {
			return int(msg.Get("message_thread_id").Int())
		}
		return 0
	}
	return 0
}

// poll - long polling getUpdates. Закрывает out после отмены ctx.
func poll(ctx context.Context, api botAPI, out chan<- incoming) {
	defer close(out)
	log := logger.WithComponent("telegram")

	offset := 0
	for ctx.Err() == nil {
		params := tgbotapi.Params{}
		params.AddNonZero("offset", offset)
		params.AddNonZero("timeout", pollTimeoutSec)

		resp, err := api.MakeRequest("getUpdates", params)
		if err != nil {
			log.WithError(err).Warn("Ошибка получения обновлений")
			if !sleep(ctx, pollRetryDelay) {
				return
			}
			continue
		}

		updates, err := decodeUpdates(resp.Result)
		if err != nil {
			log.WithError(err).Warn("Не удалось разобрать обновления")
			if !sleep(ctx, pollRetryDelay) {
				return
			}
			continue
		}

		for _, in := range updates {
			if in.update.UpdateID >= offset {
				offset = in.update.UpdateID + 1
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
