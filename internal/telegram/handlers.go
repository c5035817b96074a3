package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/catalog"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/progress"
	"github.com/yproz/tg-bots/internal/summary"
	"github.com/yproz/tg-bots/internal/telegram/report"
)

const (
	xlsxMime       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxUploadBytes = 20 << 20
)

const templateCaption = `📋 <b>Шаблон для загрузки товаров</b>

Заполните файл и отправьте обратно для импорта товаров в систему СПП мониторинга.

<i>Колонки:</i>
• client_id - ID клиента
• market - маркетплейс (ozon/wb)
• account_id - ID аккаунта
• product_code - артикул товара
• product_name - название товара
• product_link - ссылка на товар`

func (b *Bot) handleSetTopic(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.reply(ctx, chatID, threadID, "Формат: /set_topic &lt;account_id&gt;")
		return
	}
	if threadID == 0 {
		b.reply(ctx, chatID, threadID, "❌ Эта команда должна быть выполнена в треде (topic).")
		return
	}

	accountID := args[0]
	found, err := b.store.SetAccountTopic(ctx, accountID, int64(threadID))
	if err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка сохранения topic_id")
		b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка сохранения topic_id: %s", userError(err)))
		return
	}
	if !found {
		b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Аккаунт с account_id '%s' не найден.", html.EscapeString(accountID)))
		return
	}
	b.reply(ctx, chatID, threadID, fmt.Sprintf("✅ Topic ID %d сохранён для аккаунта %s", threadID, html.EscapeString(accountID)))
}

func (b *Bot) handleGetTemplate(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	data, err := catalog.Template()
	if err != nil {
		b.reply(ctx, msg.Chat.ID, threadID, fmt.Sprintf("❌ Ошибка создания шаблона: %s", userError(err)))
		return
	}
	if err := b.notifier.SendDocument(ctx, msg.Chat.ID, threadID, catalog.TemplateFileName, data, templateCaption); err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка отправки шаблона")
	}
}

func isXLSX(doc *tgbotapi.Document) bool {
	return doc.MimeType == xlsxMime || strings.HasSuffix(strings.ToLower(doc.FileName), ".xlsx")
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	chatID := msg.Chat.ID
	if !isXLSX(msg.Document) {
		b.reply(ctx, chatID, threadID, "Пришлите файл в формате XLSX (шаблон: /get_template).")
		return
	}

	data, err := b.download(ctx, msg.Document.FileID)
	if err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка загрузки файла из Telegram")
		b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка обработки файла: %s", userError(err)))
		return
	}

	result, err := b.importer.Import(ctx, bytes.NewReader(data))
	if err != nil {
		b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка обработки файла: %s", userError(err)))
		return
	}

	b.reply(ctx, chatID, threadID, importSummary(result))
	if len(result.Errors) == 0 {
		return
	}

	text := catalog.ErrorReportText(result, b.now().In(b.loc))
	if err := b.notifier.SendDocument(ctx, chatID, threadID, catalog.ErrorsFileName, []byte(text), "📋 Файл с ошибками загрузки товаров"); err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка отправки отчета об ошибках")
	}

	rows, err := catalog.ErrorRowsXLSX(result)
	if err != nil {
		logger.WithComponent("telegram").WithError(err).Warn("Не удалось собрать xlsx со строками-ошибками")
		return
	}
	if err := b.notifier.SendDocument(ctx, chatID, threadID, catalog.ErrorRowsName, rows, "📋 Строки с ошибками: исправьте и загрузите повторно"); err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка отправки строк с ошибками")
	}
}

func importSummary(result *catalog.Result) string {
	var text string
	if result.Imported > 0 {
		text = fmt.Sprintf("✅ Успешно загружено <b>%d</b> товаров", result.Imported)
	} else {
		text = "❌ Не удалось загрузить товары"
	}
	if n := len(result.Errors); n > 0 {
		text += fmt.Sprintf("\n⚠️ Ошибок: <b>%d</b>", n)
	}
	return text
}

// download скачивает файл, присланный боту.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("getting file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, app_errors.Transient("download file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, app_errors.Transient("download file", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, app_errors.Validation("download file", fmt.Errorf("файл больше %d МБ", maxUploadBytes>>20))
	}
	return data, nil
}

func (b *Bot) handleSnapshot(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 || len(args) > 2 {
		b.reply(ctx, chatID, threadID, "Формат: /snapshot YYYY-MM-DD [client_id]")
		return
	}

	day, err := time.ParseInLocation("2006-01-02", args[0], b.loc)
	if err != nil {
		b.reply(ctx, chatID, threadID, "❌ Неверный формат даты. Используйте YYYY-MM-DD")
		return
	}

	var clients []models.Client
	if len(args) == 2 {
		client, err := b.store.GetClient(ctx, args[1])
		if err != nil {
			if errors.Is(err, app_errors.ErrNotFound) {
				b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Клиент '%s' не найден.", html.EscapeString(args[1])))
				return
			}
			b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка: %s", userError(err)))
			return
		}
		clients = []models.Client{*client}
	} else {
		clients, err = b.store.ListClients(ctx)
		if err != nil {
			b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка: %s", userError(err)))
			return
		}
	}

	b.reply(ctx, chatID, threadID, fmt.Sprintf("📊 Генерация отчета СПП за %s...", args[0]))

	b.background(func() {
		sent := 0
		for _, client := range clients {
			ok, err := b.sendExport(ctx, client.ID, day, nil, chatID, threadID)
			if err != nil {
				b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка отчета для %s: %s", html.EscapeString(client.ID), userError(err)))
				continue
			}
			if ok {
				sent++
			}
		}
		if sent == 0 {
			b.reply(ctx, chatID, threadID, fmt.Sprintf("ℹ️ Нет данных за %s", args[0]))
		}
	})
}

// sendExport строит отчет и отправляет его. false без ошибки означает, что данных за день нет.
func (b *Bot) sendExport(ctx context.Context, clientID string, day time.Time, market *models.Market, chatID int64, threadID int) (bool, error) {
	export, err := b.exporter.Build(ctx, clientID, day, market)
	if err != nil {
		if errors.Is(err, app_errors.ErrNoData) {
			logger.WithComponentAndFields("telegram", logger.Fields{
				"client": clientID,
				"date":   day.Format("2006-01-02"),
			}).Info("Нет данных для отчета")
			return false, nil
		}
		return false, err
	}
	if err := b.notifier.SendDocument(ctx, chatID, threadID, export.FileName, export.Data, export.Caption); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bot) handleCollectNow(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	runID := progress.NewID()

	b.background(func() {
		if err := b.pipeline.CollectRun(ctx, runID); err != nil {
			logger.WithComponent("telegram").WithError(err).WithField("run", runID).Error("Ошибка ручного сбора цен")
		}
	})

	b.reply(ctx, msg.Chat.ID, threadID, fmt.Sprintf(
		"🚀 Запущен сбор цен СПП\n\nRun ID: <code>%s</code>\nСтатус: /status %s", runID, runID))
}

func (b *Bot) handleCheckNow(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	chatID := msg.Chat.ID
	b.reply(ctx, chatID, threadID, "🔎 Проверяем готовность отчетов парсера...")

	b.background(func() {
		completed, err := b.pipeline.CheckAll(ctx)
		if err != nil {
			b.reply(ctx, chatID, threadID, fmt.Sprintf("❌ Ошибка проверки отчетов: %s", userError(err)))
			return
		}
		b.reply(ctx, chatID, threadID, fmt.Sprintf("✅ Проверка завершена. Завершено заказов: <b>%d</b>", completed))
	})
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery, threadID int) {
	log := logger.WithComponent("telegram")

	if !strings.HasPrefix(query.Data, summary.CallbackPrefix+"|") {
		if err := b.notifier.AnswerCallback(query.ID, ""); err != nil {
			log.WithError(err).Warn("Ошибка ответа на callback")
		}
		return
	}

	req, err := summary.ParseCallbackData(query.Data)
	if err != nil {
		log.WithError(err).Warn("Некорректный callback отчета")
		if err := b.notifier.AnswerCallback(query.ID, "Некорректные данные для отчета"); err != nil {
			log.WithError(err).Warn("Ошибка ответа на callback")
		}
		return
	}

	if err := b.notifier.AnswerCallback(query.ID, fmt.Sprintf("Формируем и отправляем Excel-отчет%s...", report.MarketSuffix(req.Market))); err != nil {
		log.WithError(err).Warn("Ошибка ответа на callback")
	}

	var sourceChat int64
	if query.Message != nil && query.Message.Chat != nil {
		sourceChat = query.Message.Chat.ID
	}

	b.background(func() {
		client, err := b.store.GetClient(ctx, req.ClientID)
		if err != nil {
			log.WithError(err).WithField("client", req.ClientID).Error("Клиент для отчета не найден")
			return
		}

		chatID, thread := client.GroupChatID, 0
		if chatID == 0 {
			chatID = sourceChat
		}
		if chatID == sourceChat {
			thread = threadID
		}
		if chatID == 0 {
			return
		}

		ok, err := b.sendExport(ctx, client.ID, req.Day, req.Market, chatID, thread)
		if err != nil {
			log.WithError(err).WithField("client", client.ID).Error("Ошибка отправки Excel-отчета")
			b.reply(ctx, chatID, thread, fmt.Sprintf("❌ Ошибка формирования отчета: %s", userError(err)))
			return
		}
		if !ok {
			b.reply(ctx, chatID, thread, fmt.Sprintf("ℹ️ Нет данных для отчета%s за %s",
				report.MarketSuffix(req.Market), req.Day.Format("2006-01-02")))
		}
	})
}
