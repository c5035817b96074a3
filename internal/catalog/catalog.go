package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yproz/tg-bots/internal/app_errors"
)

// Columns - обязательные колонки файла загрузки товаров в порядке шаблона.
var Columns = []string{"client_id", "market", "account_id", "product_code", "product_name", "product_link"}

// Row - строка файла. Number совпадает с номером строки на листе, заголовок - строка 1.
type Row struct {
	Number      int
	ClientID    string
	Market      string
	AccountID   string
	ProductCode string
	ProductName string
	ProductLink string
}

func (r Row) Values() []string {
	return []string{r.ClientID, r.Market, r.AccountID, r.ProductCode, r.ProductName, r.ProductLink}
}

// ReadRows читает первый лист книги. Отсутствие любой обязательной колонки
// отклоняет весь файл.
func ReadRows(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, app_errors.Validation("read catalog", fmt.Errorf("ошибка чтения файла: %w", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, app_errors.Validation("read catalog", fmt.Errorf("в файле нет листов"))
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, app_errors.Validation("read catalog", fmt.Errorf("ошибка чтения листа: %w", err))
	}
	if len(rows) == 0 {
		return nil, app_errors.Validation("read catalog", fmt.Errorf("в файле отсутствуют колонки: %s", strings.Join(Columns, ", ")))
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, app_errors.Validation("read catalog", fmt.Errorf("в файле отсутствуют колонки: %s", strings.Join(missing, ", ")))
	}

	cell := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]Row, 0, len(rows)-1)
	for i, row := range rows[1:] {
		r := Row{
			Number:      i + 2,
			ClientID:    cell(row, "client_id"),
			Market:      cell(row, "market"),
			AccountID:   cell(row, "account_id"),
			ProductCode: cell(row, "product_code"),
			ProductName: cell(row, "product_name"),
			ProductLink: cell(row, "product_link"),
		}
		if isBlank(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func isBlank(r Row) bool {
	for _, v := range r.Values() {
		if v != "" {
			return false
		}
	}
	return true
}
