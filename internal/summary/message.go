package summary

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yproz/tg-bots/internal/models"
)

const (
	dateFormat      = "02.01.2006"
	timestampFormat = "02.01.2006 15:04"
	CallbackPrefix  = "excel_report"
)

// Moscow - часовой пояс, в котором показываются время замеров.
var Moscow = time.FixedZone("MSK", 3*60*60)

// Snapshot - данные одной сводки по маркетплейсу.
type Snapshot struct {
	Client            models.Client
	Market            models.Market
	Day               time.Time
	CurrentTimestamp  time.Time
	PreviousTimestamp time.Time
	Stats             Stats
}

func RenderMessage(s Snapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s <b>Отчет СПП мониторинга - %s</b>\n\n", s.Market.Emoji(), s.Market.DisplayName())
	fmt.Fprintf(&sb, "<b>Клиент:</b> %s (ID: %s)\n", html.EscapeString(s.Client.Name), html.EscapeString(s.Client.ID))
	fmt.Fprintf(&sb, "<b>Дата:</b> %s\n", s.Day.Format(dateFormat))
	fmt.Fprintf(&sb, "<b>Текущий срез:</b> %s МСК\n", s.CurrentTimestamp.In(Moscow).Format(timestampFormat))
	if s.PreviousTimestamp.IsZero() {
		sb.WriteString("<b>Сравнение с:</b> Нет предыдущих данных\n\n")
	} else {
		fmt.Fprintf(&sb, "<b>Сравнение с:</b> %s МСК\n\n", s.PreviousTimestamp.In(Moscow).Format(timestampFormat))
	}

	sb.WriteString("📈 <b>Статистика:</b>\n")
	fmt.Fprintf(&sb, "• Всего отслеживается: %d\n", s.Stats.Total)
	fmt.Fprintf(&sb, "• СПП выросла (скидка увеличилась): %d\n", s.Stats.Increased)
	fmt.Fprintf(&sb, "• СПП снизилась (скидка уменьшилась): %d\n", s.Stats.Decreased)
	fmt.Fprintf(&sb, "• СПП без изменений: %d\n", s.Stats.Unchanged)
	fmt.Fprintf(&sb, "• Новые товары: %d\n", s.Stats.New)

	return sb.String()
}

// ReportButton - кнопка выгрузки Excel-отчета под сводкой.
func ReportButton(clientID string, day time.Time, market models.Market) models.InlineButton {
	return models.InlineButton{
		Text: fmt.Sprintf("📥 Подробный отчет %s (EXCEL)", market.DisplayName()),
		Data: CallbackData(clientID, day, &market),
	}
}

// CallbackData собирает excel_report|{client}|{yyyy-MM-dd}|{market}. Без маркетплейса
// последняя часть опускается.
func CallbackData(clientID string, day time.Time, market *models.Market) string {
	parts := []string{CallbackPrefix, clientID, day.Format("2006-01-02")}
	if market != nil {
		parts = append(parts, string(*market))
	}
	return strings.Join(parts, "|")
}

type ReportRequest struct {
	ClientID string
	Day      time.Time
	Market   *models.Market
}

// ParseCallbackData разбирает данные кнопки отчета.
func ParseCallbackData(data string) (ReportRequest, error) {
	parts := strings.Split(data, "|")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != CallbackPrefix {
		return ReportRequest{}, fmt.Errorf("invalid callback data %q", data)
	}

	day, err := time.Parse("2006-01-02", parts[2])
	if err != nil {
		return ReportRequest{}, fmt.Errorf("invalid date in callback %q: %w", data, err)
	}

	req := ReportRequest{ClientID: parts[1], Day: day}
	if len(parts) == 4 && parts[3] != "" {
		m, err := models.ParseMarket(parts[3])
		if err != nil {
			return ReportRequest{}, err
		}
		req.Market = &m
	}
	if req.ClientID == "" {
		return ReportRequest{}, fmt.Errorf("empty client in callback %q", data)
	}
	return req, nil
}
