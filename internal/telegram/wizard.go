package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

type wizardKind int

const (
	wizardClient wizardKind = iota + 1
	wizardAccount
)

type wizardStep int

const (
	stepClientID wizardStep = iota
	stepName
	stepChatID
	stepParserKey
	stepMarket
	stepAccountID
	stepOzonClientID
	stepAPIKey
	stepRegion
)

type wizardKey struct {
	chatID int64
	userID int64
}

// wizard - незавершенный диалог добавления клиента или аккаунта.
type wizard struct {
	kind    wizardKind
	step    wizardStep
	client  models.Client
	account models.Account
}

func (b *Bot) setWizard(chatID, userID int64, w *wizard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wizards[wizardKey{chatID, userID}] = w
}

func (b *Bot) getWizard(chatID, userID int64) *wizard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wizards[wizardKey{chatID, userID}]
}

func (b *Bot) clearWizard(chatID, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.wizards, wizardKey{chatID, userID})
}

func (b *Bot) startClientWizard(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	b.setWizard(msg.Chat.ID, msg.From.ID, &wizard{kind: wizardClient, step: stepClientID})
	b.reply(ctx, msg.Chat.ID, threadID, "🆕 Создаём клиента для СПП мониторинга.\nВведите client_id (латиница/цифры):")
}

func (b *Bot) startAccountWizard(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	b.setWizard(msg.Chat.ID, msg.From.ID, &wizard{kind: wizardAccount, step: stepMarket})
	b.reply(ctx, msg.Chat.ID, threadID, "🛠 Добавление аккаунта для СПП мониторинга.\nУкажите marketplace (ozon / wb):")
}

// continueWizard применяет ответ пользователя к текущему шагу. Сообщения вне мастера игнорируются.
func (b *Bot) continueWizard(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	if msg.From == nil {
		return
	}
	w := b.getWizard(msg.Chat.ID, msg.From.ID)
	if w == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	var (
		prompt string
		done   bool
	)
	switch w.kind {
	case wizardClient:
		prompt, done = b.clientStep(w, text)
	case wizardAccount:
		prompt, done = b.accountStep(w, text)
	}

	if !done {
		b.reply(ctx, msg.Chat.ID, threadID, prompt)
		return
	}

	b.clearWizard(msg.Chat.ID, msg.From.ID)
	b.reply(ctx, msg.Chat.ID, threadID, b.finishWizard(ctx, w))
}

func (b *Bot) clientStep(w *wizard, text string) (string, bool) {
	switch w.step {
	case stepClientID:
		if text == "" {
			return "Введите client_id (латиница/цифры):", false
		}
		w.client.ID = text
		w.step = stepName
		return "Введите название клиента (например «SEB»):", false
	case stepName:
		if text == "" {
			text = w.client.ID
		}
		w.client.Name = text
		w.step = stepChatID
		return "Введите chat_id группы для отчётов (можно 0, настроите позже):", false
	case stepChatID:
		chatID, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return "❌ chat_id должен быть целым числом (например -1001234567890). Введите chat_id ещё раз:", false
		}
		w.client.GroupChatID = chatID
		w.step = stepParserKey
		return "Введите API ключ парсера (можно «-», настроите позже):", false
	case stepParserKey:
		if text != "" && text != "-" {
			key := text
			w.client.ParserAPIKey = &key
		}
		return "", true
	}
	return "", true
}

func (b *Bot) accountStep(w *wizard, text string) (string, bool) {
	switch w.step {
	case stepMarket:
		market, err := models.ParseMarket(text)
		if err != nil {
			return "Введите именно ozon или wb.", false
		}
		w.account.Market = market
		w.step = stepClientID
		return "Введите client_id (ключ клиента в нашей системе):", false
	case stepClientID:
		if text == "" {
			return "Введите client_id (ключ клиента в нашей системе):", false
		}
		w.account.ClientID = text
		w.step = stepAccountID
		return "Введите account_id (короткое имя магазина):", false
	case stepAccountID:
		if text == "" {
			return "Введите account_id (короткое имя магазина):", false
		}
		w.account.AccountID = text
		if w.account.Market == models.MarketOzon {
			w.step = stepOzonClientID
			return "Введите Ozon Client-ID (число из кабинета):", false
		}
		w.step = stepAPIKey
		return "Введите WB API-key (токен):", false
	case stepOzonClientID:
		cid := text
		w.account.OzonClientID = &cid
		w.step = stepAPIKey
		return "Введите Ozon API-key:", false
	case stepAPIKey:
		if text == "" {
			return "API-key не может быть пустым. Введите ещё раз:", false
		}
		w.account.APIKey = text
		w.step = stepRegion
		return "Введите регион (например Москва):", false
	case stepRegion:
		w.account.Region = text
		return "", true
	}
	return "", true
}

// finishWizard сохраняет результат мастера и возвращает ответ пользователю.
func (b *Bot) finishWizard(ctx context.Context, w *wizard) string {
	log := logger.WithComponent("telegram")

	switch w.kind {
	case wizardClient:
		if err := b.store.UpsertClient(ctx, w.client); err != nil {
			log.WithError(err).Error("Ошибка сохранения клиента")
			return fmt.Sprintf("❌ Ошибка сохранения клиента: %s", userError(err))
		}
		log.WithField("client", w.client.ID).Info("Клиент сохранён")
		return fmt.Sprintf("✅ Клиент <b>%s</b> добавлен для СПП мониторинга.", html.EscapeString(w.client.ID))

	case wizardAccount:
		if err := b.store.EnsureClient(ctx, w.account.ClientID); err != nil {
			log.WithError(err).Error("Ошибка создания клиента")
			return fmt.Sprintf("❌ Ошибка сохранения аккаунта: %s", userError(err))
		}
		if err := b.store.UpsertAccount(ctx, w.account); err != nil {
			log.WithError(err).Error("Ошибка сохранения аккаунта")
			return fmt.Sprintf("❌ Ошибка сохранения аккаунта: %s", userError(err))
		}
		log.WithFields(logger.Fields{
			"client":  w.account.ClientID,
			"market":  w.account.Market,
			"account": w.account.AccountID,
			"api_key": logger.MaskSensitiveData(w.account.APIKey),
		}).Info("Аккаунт сохранён")
		return "✅ Аккаунт сохранён для СПП мониторинга."
	}
	return ""
}
