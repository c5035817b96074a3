package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yproz/tg-bots/internal/progress"
)

const (
	statusMessages  = 5
	statusCompleted = 5
)

func (b *Bot) handleStatusCommand(ctx context.Context, msg *tgbotapi.Message, threadID int) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) > 0 {
		b.reply(ctx, msg.Chat.ID, threadID, b.runStatus(args[0]))
		return
	}
	b.reply(ctx, msg.Chat.ID, threadID, b.runList())
}

func (b *Bot) runStatus(id string) string {
	run := b.tracker.Get(id)
	if run == nil {
		return fmt.Sprintf("Запуск с ID '%s' не найден.", html.EscapeString(id))
	}

	status := "в процессе"
	if run.IsComplete {
		status = "завершен"
		if run.Error != "" {
			status = "завершен с ошибкой"
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Статус запуска</b>: <code>%s</code>\n\n", html.EscapeString(run.ID))
	fmt.Fprintf(&sb, "<b>Название</b>: %s\n", html.EscapeString(run.Name))
	fmt.Fprintf(&sb, "<b>Статус</b>: %s\n", status)
	fmt.Fprintf(&sb, "<b>Начало</b>: %s\n", run.StartTime.In(b.loc).Format("02.01.2006 15:04:05"))
	fmt.Fprintf(&sb, "<b>Пачки</b>: %d%% (%d из %d)\n", percent(run), run.SentBatches+run.FailedBatches, run.TotalBatches)
	fmt.Fprintf(&sb, "<b>Товаров</b>: %d\n", run.Products)
	if run.FailedBatches > 0 {
		fmt.Fprintf(&sb, "<b>С ошибками</b>: %d\n", run.FailedBatches)
	}
	if !run.IsComplete && run.EstimatedEndTime.After(b.now()) {
		fmt.Fprintf(&sb, "<b>Ожидаемое завершение</b>: %s\n", run.EstimatedEndTime.In(b.loc).Format("15:04:05"))
	}
	if run.Error != "" {
		fmt.Fprintf(&sb, "\n⚠️ <b>Ошибка</b>: %s\n", html.EscapeString(run.Error))
	}

	if len(run.Messages) > 0 {
		sb.WriteString("\n<b>Последние сообщения</b>:\n")
		start := 0
		if len(run.Messages) > statusMessages {
			start = len(run.Messages) - statusMessages
		}
		for _, m := range run.Messages[start:] {
			fmt.Fprintf(&sb, "%s <code>%s</code>: %s\n", levelEmoji(m.Level), m.Time.In(b.loc).Format("15:04:05"), html.EscapeString(m.Message))
		}
	}
	return sb.String()
}

func (b *Bot) runList() string {
	runs := b.tracker.Latest(0)
	if len(runs) == 0 {
		return "Нет запусков сбора."
	}

	var active, completed []*progress.Run
	for _, run := range runs {
		if run.IsComplete {
			completed = append(completed, run)
		} else {
			active = append(active, run)
		}
	}

	var sb strings.Builder
	sb.WriteString("<b>Запуски</b>:\n\n")
	if len(active) > 0 {
		sb.WriteString("<b>Активные</b>:\n")
		for _, run := range active {
			fmt.Fprintf(&sb, "• <code>%s</code> - %s: %d%% (%d из %d)\n",
				run.ID, html.EscapeString(run.Name), percent(run), run.SentBatches+run.FailedBatches, run.TotalBatches)
		}
		sb.WriteString("\n")
	}

	if len(completed) > 0 {
		sb.WriteString("<b>Завершенные</b>:\n")
		if len(completed) > statusCompleted {
			completed = completed[:statusCompleted]
		}
		for _, run := range completed {
			result := "✅ успешно"
			if run.Error != "" {
				result = "❌ с ошибкой"
			}
			fmt.Fprintf(&sb, "• <code>%s</code> - %s: %s (%s)\n",
				run.ID, html.EscapeString(run.Name), result, run.LastUpdateTime.In(b.loc).Format(time.DateTime))
		}
	}

	sb.WriteString("\nДля подробностей: <code>/status ID</code>")
	return sb.String()
}

func percent(run *progress.Run) int {
	if run.TotalBatches == 0 {
		if run.IsComplete {
			return 100
		}
		return 0
	}
	return (run.SentBatches + run.FailedBatches) * 100 / run.TotalBatches
}

func levelEmoji(level string) string {
	switch level {
	case progress.LevelError:
		return "❌"
	case progress.LevelWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
