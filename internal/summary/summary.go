package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

const (
	SentTTL = 24 * time.Hour
	lockTTL = 2 * time.Minute
)

// SnapshotStore - выборки срезов, общие для сводки и Excel-отчета.
type SnapshotStore interface {
	LatestResults(ctx context.Context, clientID string, market *models.Market, from, to time.Time) ([]models.SnapshotRow, error)
	LatestResultsBefore(ctx context.Context, clientID string, market *models.Market, before time.Time) ([]models.SnapshotRow, error)
}

type Store interface {
	SnapshotStore
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	ListAccounts(ctx context.Context, clientID string) ([]models.Account, error)
}

// SentMarker хранит факт отправки сводки за день.
type SentMarker interface {
	IsSent(ctx context.Context, key string) (bool, error)
	MarkSent(ctx context.Context, key string, ttl time.Duration) error
}

// Locker сериализует отправку сводок одного клиента между процессами.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Notifier interface {
	SendHTML(ctx context.Context, chatID int64, threadID int, text string, buttons ...models.InlineButton) error
}

func SentKey(clientID string, day time.Time) string {
	return fmt.Sprintf("daily_summary_sent:%s:%s", clientID, day.Format("2006-01-02"))
}

func LockKey(clientID string) string {
	return "daily_summary_lock:" + clientID
}

// DayBounds возвращает календарный день в loc и его границы в UTC.
func DayBounds(t time.Time, loc *time.Location) (day, from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	day = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day, day.UTC(), day.AddDate(0, 0, 1).UTC()
}

// LoadComparison выбирает срез за [from, to) и предыдущий срез до самого свежего
// замера текущего. Пустой текущий срез возвращается без ошибки.
func LoadComparison(ctx context.Context, store SnapshotStore, clientID string, market *models.Market, from, to time.Time) ([]models.SnapshotRow, []models.SnapshotRow, error) {
	current, err := store.LatestResults(ctx, clientID, market, from, to)
	if err != nil {
		return nil, nil, err
	}
	if len(current) == 0 {
		return nil, nil, nil
	}

	previous, err := store.LatestResultsBefore(ctx, clientID, market, LatestTimestamp(current))
	if err != nil {
		return nil, nil, err
	}
	return current, previous, nil
}

// Engine отправляет ежедневные сводки СПП в группы клиентов.
type Engine struct {
	store    Store
	marker   SentMarker
	locker   Locker
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// NewEngine создает движок сводок. locker может быть nil.
func NewEngine(store Store, marker SentMarker, locker Locker, notifier Notifier, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:    store,
		marker:   marker,
		locker:   locker,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// Send отправляет сводки клиенту clientID или всем клиентам, если clientID пуст.
// Без force повторная отправка в тот же день пропускается. Возвращает число отправленных сообщений.
func (e *Engine) Send(ctx context.Context, clientID string, force bool) (int, error) {
	var clients []models.Client
	if clientID != "" {
		client, err := e.store.GetClient(ctx, clientID)
		if err != nil {
			return 0, fmt.Errorf("loading client %s: %w", clientID, err)
		}
		clients = []models.Client{*client}
	} else {
		all, err := e.store.ListClients(ctx)
		if err != nil {
			return 0, fmt.Errorf("loading clients: %w", err)
		}
		clients = all
	}

	day, from, to := DayBounds(e.now(), e.loc)

	total := 0
	for _, client := range clients {
		n, err := e.sendClient(ctx, client, day, from, to, force)
		if err != nil {
			logger.WithComponentAndFields("summary", logger.Fields{"client": client.ID}).
				WithError(err).Error("Ошибка отправки ежедневной сводки")
		}
		total += n
	}
	return total, nil
}

func (e *Engine) sendClient(ctx context.Context, client models.Client, day, from, to time.Time, force bool) (int, error) {
	entry := logger.WithComponentAndFields("summary", logger.Fields{
		"client": client.ID,
		"date":   day.Format("2006-01-02"),
		"force":  force,
	})

	if client.GroupChatID == 0 {
		entry.Warn("У клиента не настроен чат группы, сводка не отправляется")
		return 0, nil
	}

	if e.locker != nil {
		release, ok, err := e.locker.Lock(ctx, LockKey(client.ID), lockTTL)
		switch {
		case err != nil:
			entry.WithError(err).Warn("Не удалось взять блокировку, продолжаем без неё")
		case !ok:
			entry.Info("Сводка клиента уже отправляется другим процессом")
			return 0, nil
		default:
			defer release()
		}
	}

	key := SentKey(client.ID, day)
	if !force {
		sent, err := e.marker.IsSent(ctx, key)
		if err != nil {
			entry.WithError(err).Warn("Не удалось проверить отметку об отправке, считаем что не отправлено")
		} else if sent {
			entry.Info("Сводка за сегодня уже отправлена")
			return 0, nil
		}
	}

	accounts, err := e.store.ListAccounts(ctx, client.ID)
	if err != nil {
		entry.WithError(err).Warn("Не удалось получить аккаунты, треды не используются")
	}

	sent := 0
	for _, market := range models.Markets {
		ok, err := e.summarize(ctx, client, market, threadFor(accounts, market), day, from, to)
		if err != nil {
			entry.WithField("market", market).WithError(err).Error("Ошибка формирования сводки по маркетплейсу")
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		if err := e.marker.MarkSent(ctx, key, SentTTL); err != nil {
			entry.WithError(err).Warn("Не удалось сохранить отметку об отправке")
		}
		entry.WithField("messages", sent).Info("Ежедневная сводка отправлена")
	}
	return sent, nil
}

func (e *Engine) summarize(ctx context.Context, client models.Client, market models.Market, threadID int, day, from, to time.Time) (bool, error) {
	current, previous, err := LoadComparison(ctx, e.store, client.ID, &market, from, to)
	if err != nil {
		return false, err
	}
	if len(current) == 0 {
		return false, nil
	}

	stats, _ := Compare(current, previous)
	text := RenderMessage(Snapshot{
		Client:            client,
		Market:            market,
		Day:               day,
		CurrentTimestamp:  LatestTimestamp(current),
		PreviousTimestamp: LatestTimestamp(previous),
		Stats:             stats,
	})

	if err := e.notifier.SendHTML(ctx, client.GroupChatID, threadID, text, ReportButton(client.ID, day, market)); err != nil {
		return false, fmt.Errorf("sending summary: %w", err)
	}
	return true, nil
}

// threadFor возвращает тред первого аккаунта маркетплейса с сохраненным topic_id.
func threadFor(accounts []models.Account, market models.Market) int {
	for _, a := range accounts {
		if a.Market == market && a.TopicID != nil {
			return int(*a.TopicID)
		}
	}
	return 0
}
