package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

// Notifier отправляет HTML-сообщения и файлы в чаты и треды форумов.
type Notifier struct {
	api botAPI
}

func NewNotifier(api botAPI) *Notifier {
	return &Notifier{api: api}
}

// SendHTML шлет сообщение с необязательной inline-кнопкой на каждую строку.
// threadID == 0 означает основной чат.
func (n *Notifier) SendHTML(ctx context.Context, chatID int64, threadID int, text string, buttons ...models.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var markup *tgbotapi.InlineKeyboardMarkup
	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
		markup = &kb
	}

	if threadID == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		if _, err := n.api.Send(msg); err != nil {
			return fmt.Errorf("sending message to chat %d: %w", chatID, err)
		}
		return nil
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_thread_id", threadID)
	params["text"] = text
	params["parse_mode"] = tgbotapi.ModeHTML
	if markup != nil {
		if err := params.AddInterface("reply_markup", markup); err != nil {
			return fmt.Errorf("encoding keyboard: %w", err)
		}
	}

	if _, err := n.api.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("sending message to chat %d thread %d: %w", chatID, threadID, err)
	}
	return nil
}

// SendDocument загружает файл из памяти.
func (n *Notifier) SendDocument(ctx context.Context, chatID int64, threadID int, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file := tgbotapi.FileBytes{Name: name, Bytes: data}

	if threadID == 0 {
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(doc); err != nil {
			return fmt.Errorf("sending document %s to chat %d: %w", name, chatID, err)
		}
	} else {
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", chatID)
		params.AddNonZero("message_thread_id", threadID)
		params.AddNonEmpty("caption", caption)
		params["parse_mode"] = tgbotapi.ModeHTML

		files := []tgbotapi.RequestFile{{Name: "document", Data: file}}
		if _, err := n.api.UploadFiles("sendDocument", params, files); err != nil {
			return fmt.Errorf("sending document %s to chat %d thread %d: %w", name, chatID, threadID, err)
		}
	}

	logger.WithComponentAndFields("telegram", logger.Fields{
		"chat":   chatID,
		"thread": threadID,
		"file":   name,
		"bytes":  len(data),
	}).Info("Документ отправлен")
	return nil
}

// AnswerCallback показывает всплывающее уведомление по нажатию кнопки.
func (n *Notifier) AnswerCallback(queryID, text string) error {
	if _, err := n.api.Request(tgbotapi.NewCallbackWithAlert(queryID, text)); err != nil {
		return fmt.Errorf("answering callback: %w", err)
	}
	return nil
}
