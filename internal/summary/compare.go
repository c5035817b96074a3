package summary

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/models"
)

// Change - как изменилась скидка относительно предыдущего среза.
type Change int

const (
	ChangeNew Change = iota
	ChangeIncreased
	ChangeDecreased
	ChangeUnchanged
)

func (c Change) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeIncreased:
		return "increased"
	case ChangeDecreased:
		return "decreased"
	}
	return "unchanged"
}

// Discount возвращает долю скидки (m-s)/m, округленную до 2 знаков.
// Если одна из цен отсутствует или не положительна, скидка нулевая.
func Discount(market, showcase decimal.NullDecimal) decimal.Decimal {
	if !market.Valid || !showcase.Valid {
		return decimal.Zero
	}
	if !market.Decimal.IsPositive() || !showcase.Decimal.IsPositive() {
		return decimal.Zero
	}
	return market.Decimal.Sub(showcase.Decimal).Div(market.Decimal).Round(2)
}

// Classify сравнивает скидки текущей и предыдущей строк. previous == nil значит новый товар.
func Classify(current models.SnapshotRow, previous *models.SnapshotRow) Change {
	if previous == nil {
		return ChangeNew
	}
	cur := Discount(current.MarketPrice, current.ShowcasePrice)
	prev := Discount(previous.MarketPrice, previous.ShowcasePrice)
	switch cur.Cmp(prev) {
	case 1:
		return ChangeIncreased
	case -1:
		return ChangeDecreased
	}
	return ChangeUnchanged
}

type Stats struct {
	Total     int
	Increased int
	Decreased int
	Unchanged int
	New       int
}

// Comparison - строка текущего среза вместе с предыдущей строкой того же товара.
type Comparison struct {
	Current          models.SnapshotRow
	Previous         *models.SnapshotRow
	Discount         decimal.Decimal
	PreviousDiscount decimal.NullDecimal
	Change           Change
}

// Compare сопоставляет срезы по product_code, сохраняя порядок current.
func Compare(current, previous []models.SnapshotRow) (Stats, []Comparison) {
	byCode := make(map[string]*models.SnapshotRow, len(previous))
	for i := range previous {
		byCode[previous[i].ProductCode] = &previous[i]
	}

	stats := Stats{Total: len(current)}
	rows := make([]Comparison, 0, len(current))
	for _, cur := range current {
		prev := byCode[cur.ProductCode]
		cmp := Comparison{
			Current:  cur,
			Previous: prev,
			Discount: Discount(cur.MarketPrice, cur.ShowcasePrice),
			Change:   Classify(cur, prev),
		}
		if prev != nil {
			cmp.PreviousDiscount = decimal.NewNullDecimal(Discount(prev.MarketPrice, prev.ShowcasePrice))
		}

		switch cmp.Change {
		case ChangeNew:
			stats.New++
		case ChangeIncreased:
			stats.Increased++
		case ChangeDecreased:
			stats.Decreased++
		default:
			stats.Unchanged++
		}
		rows = append(rows, cmp)
	}
	return stats, rows
}

// LatestTimestamp - максимальное время замера среди строк.
func LatestTimestamp(rows []models.SnapshotRow) time.Time {
	var latest time.Time
	for _, r := range rows {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return latest
}
