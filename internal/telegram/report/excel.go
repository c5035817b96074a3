package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/summary"
)

const (
	priceFormat   = "#,##0.00"
	percentFormat = "0.00%"
	dateFormat    = "dd.mm.yyyy hh:mm"
)

var (
	baseHeaders = []string{
		"Артикул", "Название", "Ссылка", "Цена маркетплейса", "Цена на витрине",
		"Размер скидки (%)", "Время замера", "Цена на витрине прошл",
		"Размер скидки (%) прошл", "Время замера прошл",
	}
	baseWidths = []float64{15, 40, 30, 20, 20, 15, 20, 20, 18, 20}

	marketHeader = "Маркетплейс"
	marketWidth  = 15.0
)

// Export - готовый к отправке Excel-отчет сравнения срезов.
type Export struct {
	FileName string
	Caption  string
	Data     []byte
	Stats    summary.Stats
}

// Exporter строит отчет сравнения текущего среза с предыдущим.
type Exporter struct {
	store summary.SnapshotStore
	loc   *time.Location
}

func NewExporter(store summary.SnapshotStore, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{store: store, loc: loc}
}

// Build формирует отчет клиента за календарный день. market == nil означает все маркетплейсы.
// Если замеров за день нет, возвращает ErrNoData.
func (e *Exporter) Build(ctx context.Context, clientID string, day time.Time, market *models.Market) (*Export, error) {
	localDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, e.loc)
	_, from, to := summary.DayBounds(localDay, e.loc)

	current, previous, err := summary.LoadComparison(ctx, e.store, clientID, market, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}
	if len(current) == 0 {
		return nil, app_errors.ErrNoData
	}

	stats, rows := summary.Compare(current, previous)
	data, err := Render(rows, market)
	if err != nil {
		return nil, err
	}

	dateStr := localDay.Format("2006-01-02")
	logger.WithComponentAndFields("report", logger.Fields{
		"client": clientID,
		"date":   dateStr,
		"rows":   len(rows),
	}).Info("Excel-отчет сформирован")

	return &Export{
		FileName: FileName(clientID, dateStr, market),
		Caption:  Caption(dateStr, market),
		Data:     data,
		Stats:    stats,
	}, nil
}

func SheetName(market *models.Market) string {
	if market == nil {
		return "Отчет"
	}
	switch *market {
	case models.MarketOzon:
		return "Отчет_Ozon"
	case models.MarketWB:
		return "Отчет_WB"
	}
	return "Отчет"
}

func FileName(clientID, date string, market *models.Market) string {
	suffix := ""
	if market != nil {
		switch *market {
		case models.MarketOzon:
			suffix = "_Ozon"
		case models.MarketWB:
			suffix = "_WB"
		}
	}
	return fmt.Sprintf("report_comparison_%s_%s%s.xlsx", clientID, date, suffix)
}

func Caption(date string, market *models.Market) string {
	return fmt.Sprintf("📊 <b>Подробный Excel-отчет%s за %s</b>", MarketSuffix(market), date)
}

// MarketSuffix - " Ozon", " Wildberries" или пустая строка для отчета по всем маркетплейсам.
func MarketSuffix(market *models.Market) string {
	if market == nil {
		return ""
	}
	return " " + market.DisplayName()
}

// Render пишет строки сравнения в книгу xlsx и возвращает её байты.
func Render(rows []summary.Comparison, market *models.Market) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.WithComponent("report").WithError(err).Warn("Ошибка закрытия Excel-файла")
		}
	}()

	sheet := SheetName(market)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}

	headers := append([]string{}, baseHeaders...)
	widths := append([]float64{}, baseWidths...)
	if market == nil {
		headers = append(headers, marketHeader)
		widths = append(widths, marketWidth)
	}

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheet, "A1", lastHeader, styles.header)

	for i, r := range rows {
		rowNum := i + 2
		set := func(col int, value interface{}, style int) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			if value != nil {
				f.SetCellValue(sheet, cell, value)
			}
			f.SetCellStyle(sheet, cell, cell, style)
		}

		cur := r.Current
		set(1, cur.ProductCode, styles.data)
		set(2, cur.ProductName, styles.data)
		set(3, cur.Link(), styles.data)
		set(4, priceValue(cur.MarketPrice), styles.price)
		set(5, priceValue(cur.ShowcasePrice), styles.price)
		set(6, r.Discount.InexactFloat64(), styles.percent)
		set(7, excelTime(cur.Timestamp), styles.date)

		if r.Previous != nil {
			set(8, priceValue(r.Previous.ShowcasePrice), styles.price)
			set(9, r.PreviousDiscount.Decimal.InexactFloat64(), styles.percent)
			set(10, excelTime(r.Previous.Timestamp), styles.date)
		} else {
			set(8, nil, styles.data)
			set(9, nil, styles.data)
			set(10, nil, styles.data)
		}

		if market == nil {
			set(11, cur.Market.DisplayName(), styles.data)
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

type styleSet struct {
	header  int
	data    int
	price   int
	percent int
	date    int
}

func newStyles(f *excelize.File) (styleSet, error) {
	border := []excelize.Border{
		{Type: "top", Color: "#000000", Style: 1},
		{Type: "left", Color: "#000000", Style: 1},
		{Type: "right", Color: "#000000", Style: 1},
		{Type: "bottom", Color: "#000000", Style: 1},
	}

	var (
		s   styleSet
		err error
	)
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return s, fmt.Errorf("error creating header style: %w", err)
	}

	s.data, err = f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return s, fmt.Errorf("error creating data style: %w", err)
	}

	price, percent, date := priceFormat, percentFormat, dateFormat
	s.price, err = f.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &price})
	if err != nil {
		return s, fmt.Errorf("error creating price style: %w", err)
	}
	s.percent, err = f.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &percent})
	if err != nil {
		return s, fmt.Errorf("error creating percentage style: %w", err)
	}
	s.date, err = f.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &date})
	if err != nil {
		return s, fmt.Errorf("error creating date style: %w", err)
	}
	return s, nil
}

func priceValue(p decimal.NullDecimal) interface{} {
	if !p.Valid {
		return nil
	}
	return p.Decimal.InexactFloat64()
}

// excelTime переводит время замера в московское и отбрасывает зону:
// Excel хранит дату без часового пояса.
func excelTime(t time.Time) time.Time {
	msk := t.In(summary.Moscow)
	return time.Date(msk.Year(), msk.Month(), msk.Day(), msk.Hour(), msk.Minute(), msk.Second(), 0, time.UTC)
}
