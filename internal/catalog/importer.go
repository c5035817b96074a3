package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

type Store interface {
	FindAccountID(ctx context.Context, clientID string, market models.Market, accountID string) (int64, error)
	UpsertProduct(ctx context.Context, p models.Product) error
}

// ErrorRow - отклоненная строка вместе с исходными значениями.
type ErrorRow struct {
	Row     Row
	Message string
}

type Result struct {
	Imported  int
	Errors    []string
	ErrorRows []ErrorRow
}

func (r *Result) reject(row Row, format string, args ...interface{}) {
	msg := fmt.Sprintf("Строка %d: ", row.Number) + fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, msg)
	r.ErrorRows = append(r.ErrorRows, ErrorRow{Row: row, Message: msg})
}

type Importer struct {
	store Store
}

func NewImporter(store Store) *Importer {
	return &Importer{store: store}
}

// Import читает xlsx и сохраняет товары. Ошибки отдельных строк попадают в Result,
// ошибка возвращается только если файл нельзя прочитать целиком.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	return im.ImportRows(ctx, rows), nil
}

func (im *Importer) ImportRows(ctx context.Context, rows []Row) *Result {
	entry := logger.WithComponent("catalog")
	result := &Result{}

	type productKey struct{ client, code string }
	seen := make(map[productKey]bool, len(rows))

	for _, row := range rows {
		if row.ClientID != "" && row.ProductCode != "" {
			key := productKey{row.ClientID, row.ProductCode}
			if seen[key] {
				result.reject(row, "дубликат product_code '%s' в загружаемом файле", row.ProductCode)
				continue
			}
			seen[key] = true
		}

		market, ok := im.validate(row, result)
		if !ok {
			continue
		}

		accountID, err := im.store.FindAccountID(ctx, row.ClientID, market, row.AccountID)
		if err != nil {
			if errors.Is(err, app_errors.ErrNotFound) {
				result.reject(row, "аккаунт не найден (%s/%s/%s)", row.ClientID, row.Market, row.AccountID)
			} else {
				result.reject(row, "ошибка при сохранении: %v", err)
			}
			continue
		}

		product := models.Product{
			ClientID:    row.ClientID,
			AccountID:   accountID,
			ProductCode: row.ProductCode,
			ProductName: row.ProductName,
		}
		if row.ProductLink != "" {
			link := row.ProductLink
			product.ProductLink = &link
		}

		if err := im.store.UpsertProduct(ctx, product); err != nil {
			result.reject(row, "ошибка при сохранении: %v", err)
			continue
		}
		result.Imported++
	}

	entry.WithFields(logger.Fields{
		"rows":     len(rows),
		"imported": result.Imported,
		"errors":   len(result.Errors),
	}).Info("Импорт товаров завершен")
	return result
}

func (im *Importer) validate(row Row, result *Result) (models.Market, bool) {
	switch {
	case row.ClientID == "":
		result.reject(row, "пустой client_id")
		return "", false
	case row.Market == "":
		result.reject(row, "пустой market")
		return "", false
	}

	market, err := models.ParseMarket(row.Market)
	if err != nil {
		result.reject(row, "неверный market '%s' (должен быть ozon или wb)", row.Market)
		return "", false
	}

	switch {
	case row.AccountID == "":
		result.reject(row, "пустой account_id")
		return "", false
	case row.ProductCode == "":
		result.reject(row, "пустой product_code")
		return "", false
	case row.ProductName == "":
		result.reject(row, "пустое product_name")
		return "", false
	}
	return market, true
}
