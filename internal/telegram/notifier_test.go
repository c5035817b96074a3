package telegram

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yproz/tg-bots/internal/models"
)

func TestNotifier_SendHTMLToChat(t *testing.T) {
	api := newMockAPI()
	n := NewNotifier(api)

	err := n.SendHTML(context.Background(), -100, 0, "<b>hi</b>", models.InlineButton{Text: "📥", Data: "excel_report|SEB|2024-01-02|ozon"})
	require.NoError(t, err)

	api.AssertCalled(t, "Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		return msg.ChatID == -100 &&
			msg.ParseMode == tgbotapi.ModeHTML &&
			ok && *kb.InlineKeyboard[0][0].CallbackData == "excel_report|SEB|2024-01-02|ozon"
	}))
	api.AssertNotCalled(t, "MakeRequest", mock.Anything, mock.Anything)
}

func TestNotifier_SendHTMLToThread(t *testing.T) {
	api := newMockAPI()
	n := NewNotifier(api)

	err := n.SendHTML(context.Background(), -100, 7, "text", models.InlineButton{Text: "btn", Data: "excel_report|SEB|2024-01-02|wb"})
	require.NoError(t, err)

	api.AssertCalled(t, "MakeRequest", "sendMessage", mock.MatchedBy(func(p tgbotapi.Params) bool {
		return p["chat_id"] == "-100" &&
			p["message_thread_id"] == "7" &&
			p["text"] == "text" &&
			p["parse_mode"] == tgbotapi.ModeHTML &&
			strings.Contains(p["reply_markup"], "excel_report|SEB|2024-01-02|wb")
	}))
	api.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNotifier_SendDocument(t *testing.T) {
	api := newMockAPI()
	n := NewNotifier(api)

	require.NoError(t, n.SendDocument(context.Background(), 5, 0, "a.xlsx", []byte("x"), "cap"))
	docs := api.sentDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "cap", docs[0].Caption)
	assert.Equal(t, tgbotapi.ModeHTML, docs[0].ParseMode)
	assert.Equal(t, tgbotapi.FileBytes{Name: "a.xlsx", Bytes: []byte("x")}, docs[0].File)

	require.NoError(t, n.SendDocument(context.Background(), 5, 9, "b.txt", []byte("y"), "cap"))
	api.AssertCalled(t, "UploadFiles", "sendDocument",
		mock.MatchedBy(func(p tgbotapi.Params) bool { return p["message_thread_id"] == "9" && p["chat_id"] == "5" }),
		mock.MatchedBy(func(files []tgbotapi.RequestFile) bool {
			return len(files) == 1 && files[0].Name == "document"
		}))
}

func TestNotifier_CanceledContext(t *testing.T) {
	api := newMockAPI()
	n := NewNotifier(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.SendHTML(ctx, 1, 0, "x"), context.Canceled)
	api.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNotifier_AnswerCallback(t *testing.T) {
	api := newMockAPI()
	n := NewNotifier(api)

	require.NoError(t, n.AnswerCallback("q1", "ok"))
	api.AssertCalled(t, "Request", mock.MatchedBy(func(c tgbotapi.CallbackConfig) bool {
		return c.CallbackQueryID == "q1" && c.Text == "ok" && c.ShowAlert
	}))
}

func TestDecodeUpdates(t *testing.T) {
	raw := []byte(`[
		{"update_id": 10, "message": {"message_id": 1, "message_thread_id": 42, "is_topic_message": true,
			"chat": {"id": -100, "type": "supergroup"}, "from": {"id": 7}, "text": "/set_topic fm"}},
		{"update_id": 11, "message": {"message_id": 2, "message_thread_id": 5,
			"chat": {"id": -100, "type": "supergroup"}, "from": {"id": 7}, "text": "reply"}},
		{"update_id": 12, "callback_query": {"id": "q", "from": {"id": 7}, "data": "excel_report|SEB|2024-01-02",
			"message": {"message_id": 3, "message_thread_id": 8, "is_topic_message": true, "chat": {"id": -100, "type": "supergroup"}}}}
	]`)

	updates, err := decodeUpdates(raw)
	require.NoError(t, err)
	require.Len(t, updates, 3)

	assert.Equal(t, 10, updates[0].update.UpdateID)
	assert.Equal(t, "/set_topic fm", updates[0].update.Message.Text)
	assert.Equal(t, 42, updates[0].threadID)
	// ответ в обычной группе без форума
	assert.Equal(t, 0, updates[1].threadID)
	assert.Equal(t, 8, updates[2].threadID)
	assert.Equal(t, "q", updates[2].update.CallbackQuery.ID)

	_, err = decodeUpdates([]byte(`{"broken`))
	assert.Error(t, err)
}
