package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yproz/tg-bots/internal/logger"
)

const (
	TemplateFileName = "template_products.xlsx"
	ErrorsFileName   = "upload_errors.txt"
	ErrorRowsName    = "upload_errors.xlsx"
)

var templateExamples = [][]string{
	{"SEB", "ozon", "fm", "1101001001", "Футболка мужская хлопок", "https://www.ozon.ru/product/1101001001"},
	{"SEB", "ozon", "fm", "1101001020", "Джинсы классические", "https://www.ozon.ru/product/1101001020"},
	{"SEB", "wb", "fm", "2000069940", "Кроссовки спортивные", "https://www.wildberries.ru/catalog/2000069940"},
}

// Template возвращает xlsx-шаблон загрузки с примерами строк.
func Template() ([]byte, error) {
	rows := make([][]string, 0, len(templateExamples)+1)
	rows = append(rows, Columns)
	rows = append(rows, templateExamples...)
	return writeSheet("products", rows, []float64{12, 10, 12, 16, 40, 50})
}

// ErrorRowsXLSX - отклоненные строки в исходном виде с номером строки.
func ErrorRowsXLSX(result *Result) ([]byte, error) {
	header := append([]string{"Строка"}, Columns...)
	rows := [][]string{header}
	for _, er := range result.ErrorRows {
		rows = append(rows, append([]string{fmt.Sprint(er.Row.Number)}, er.Row.Values()...))
	}
	return writeSheet("errors", rows, nil)
}

// ErrorReportText - текстовый отчет об ошибках загрузки.
func ErrorReportText(result *Result, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Отчет об ошибках загрузки товаров\n")
	fmt.Fprintf(&sb, "Дата: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Успешно загружено: %d товаров\n", result.Imported)
	fmt.Fprintf(&sb, "Ошибок: %d\n", len(result.Errors))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	for i, e := range result.Errors {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, e)
	}
	return sb.String()
}

func writeSheet(name string, rows [][]string, widths []float64) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.WithComponent("catalog").WithError(err).Warn("Ошибка закрытия Excel-файла")
		}
	}()

	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("error creating header style: %w", err)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", i+1, err)
		}
	}
	if len(rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
		f.SetCellStyle(name, "A1", last, headerStyle)
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(name, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing Excel file: %w", err)
	}
	return buf.Bytes(), nil
}
