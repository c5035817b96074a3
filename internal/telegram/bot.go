package telegram

import (
	"context"
	"errors"
	"html"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/catalog"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/progress"
	"github.com/yproz/tg-bots/internal/telegram/report"
)

type Store interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	UpsertClient(ctx context.Context, c models.Client) error
	EnsureClient(ctx context.Context, id string) error
	UpsertAccount(ctx context.Context, a models.Account) error
	SetAccountTopic(ctx context.Context, accountID string, topicID int64) (bool, error)
}

type Exporter interface {
	Build(ctx context.Context, clientID string, day time.Time, market *models.Market) (*report.Export, error)
}

type Importer interface {
	Import(ctx context.Context, r io.Reader) (*catalog.Result, error)
}

// Pipeline - ручной запуск этапов мониторинга.
type Pipeline interface {
	CollectRun(ctx context.Context, runID string) error
	CheckAll(ctx context.Context) (int, error)
}

type Deps struct {
	Store          Store
	Exporter       Exporter
	Importer       Importer
	Pipeline       Pipeline
	Tracker        *progress.Tracker
	AllowedUserIDs []int64
	Location       *time.Location
	HTTPClient     *http.Client
}

type Bot struct {
	api      botAPI
	notifier *Notifier

	store    Store
	exporter Exporter
	importer Importer
	pipeline Pipeline
	tracker  *progress.Tracker

	allowedUsers map[int64]bool
	httpClient   *http.Client
	loc          *time.Location
	now          func() time.Time

	mu      sync.Mutex
	wizards map[wizardKey]*wizard

	jobs sync.WaitGroup
}

func NewBot(api botAPI, deps Deps) *Bot {
	allowed := make(map[int64]bool, len(deps.AllowedUserIDs))
	for _, id := range deps.AllowedUserIDs {
		allowed[id] = true
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = progress.NewTracker(100)
	}

	return &Bot{
		api:          api,
		notifier:     NewNotifier(api),
		store:        deps.Store,
		exporter:     deps.Exporter,
		importer:     deps.Importer,
		pipeline:     deps.Pipeline,
		tracker:      tracker,
		allowedUsers: allowed,
		httpClient:   client,
		loc:          loc,
		now:          time.Now,
		wizards:      make(map[wizardKey]*wizard),
	}
}

// StartBot обрабатывает апдейты до отмены ctx и дожидается фоновых запусков.
func (b *Bot) StartBot(ctx context.Context) {
	updates := make(chan incoming, 100)
	go poll(ctx, b.api, updates)
	go b.runProgressCleanup(ctx)

	logger.WithComponent("telegram").Info("Бот запущен")
	for in := range updates {
		b.dispatch(ctx, in)
	}
	b.jobs.Wait()
	logger.WithComponent("telegram").Info("Бот остановлен")
}

func (b *Bot) dispatch(ctx context.Context, in incoming) {
	log := logger.WithComponent("telegram")
	switch {
	case in.update.Message != nil:
		msg := in.update.Message
		if msg.From == nil || !b.allowed(msg.From.ID) {
			if msg.From != nil {
				log.WithField("user_id", msg.From.ID).Warn("Попытка доступа без разрешения")
			}
			b.reply(ctx, msg.Chat.ID, in.threadID, "Извините, у вас нет доступа к этому боту.")
			return
		}
		b.handleMessage(ctx, msg, in.threadID)
	case in.update.CallbackQuery != nil:
		query := in.update.CallbackQuery
		if query.From == nil || !b.allowed(query.From.ID) {
			log.Warn("Callback от пользователя без доступа")
			return
		}
		b.handleCallbackQuery(ctx, query, in.threadID)
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	chatID := msg.Chat.ID

	if msg.Document != nil {
		b.handleDocument(ctx, msg, threadID)
		return
	}

	if msg.IsCommand() {
		b.clearWizard(chatID, msg.From.ID)

		switch msg.Command() {
		case "start", "help":
			b.reply(ctx, chatID, threadID, helpText)
		case "cancel":
			b.reply(ctx, chatID, threadID, "Действие отменено.")
		case "add_client":
			b.startClientWizard(ctx, msg, threadID)
		case "add_account":
			b.startAccountWizard(ctx, msg, threadID)
		case "set_topic":
			b.handleSetTopic(ctx, msg, threadID)
		case "get_template":
			b.handleGetTemplate(ctx, msg, threadID)
		case "snapshot":
			b.handleSnapshot(ctx, msg, threadID)
		case "collect_now":
			b.handleCollectNow(ctx, msg, threadID)
		case "check_now":
			b.handleCheckNow(ctx, msg, threadID)
		case "status":
			b.handleStatusCommand(ctx, msg, threadID)
		default:
			b.reply(ctx, chatID, threadID, "Неизвестная команда. Список команд: /help")
		}
		return
	}

	b.continueWizard(ctx, msg, threadID)
}

// reply отправляет HTML-ответ, ошибка только логируется.
func (b *Bot) reply(ctx context.Context, chatID int64, threadID int, text string) {
	if err := b.notifier.SendHTML(ctx, chatID, threadID, text); err != nil {
		logger.WithComponent("telegram").WithError(err).Error("Ошибка отправки ответа")
	}
}

func (b *Bot) runProgressCleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.tracker.Cleanup(24 * time.Hour)
		case <-ctx.Done():
			return
		}
	}
}

// background запускает долгую операцию вне цикла апдейтов.
func (b *Bot) background(fn func()) {
	b.jobs.Add(1)
	go func() {
		defer b.jobs.Done()
		fn()
	}()
}

// userError - текст ошибки для пользователя без служебного префикса вида.
func userError(err error) string {
	var appErr *app_errors.Error
	if errors.As(err, &appErr) && appErr.Err != nil {
		err = appErr.Err
	}
	return html.EscapeString(err.Error())
}

const helpText = `👋 <b>СПП Мониторинг Бот</b>

Команды:
• /add_client - мастер добавления клиента
• /add_account - мастер добавления магазина
• /set_topic &lt;account_id&gt; - сохранить topic_id текущего треда
• /get_template - XLSX-шаблон для загрузки товаров
• пришлите файл XLSX для импорта товаров
• /snapshot YYYY-MM-DD [client_id] - Excel-срез СПП за дату
• /collect_now - запустить сбор цен сейчас
• /check_now - проверить готовность отчетов парсера
• /status [id] - ход запусков сбора
• /cancel - прервать мастер

<i>Бот отслеживает изменения СПП (Совместных инвестиций) на маркетплейсах</i>`
