package batch

import (
	"strings"
	"time"

	"github.com/yproz/tg-bots/internal/logger"
	"github.com/yproz/tg-bots/internal/models"
)

const (
	DefaultBatchSize = 1000
	MaxBatchSize     = 10000
)

// ValidateBatchSize приводит размер пакета к допустимому диапазону.
func ValidateBatchSize(n int) int {
	switch {
	case n <= 0:
		logger.WithComponent("batch").Warnf("Некорректный размер пакета %d, используется %d", n, DefaultBatchSize)
		return DefaultBatchSize
	case n > MaxBatchSize:
		logger.WithComponent("batch").Warnf("Размер пакета %d больше максимума, используется %d", n, MaxBatchSize)
		return MaxBatchSize
	}
	return n
}

// ValidLink проверяет, что ссылка ведет на тот же маркетплейс, что и аккаунт.
// Невалидная ссылка отбрасывается, но товар остается в пакете.
func ValidLink(link string, market models.Market) (string, bool) {
	if link == "" {
		return "", false
	}

	lower := strings.ToLower(link)
	var ok bool
	switch market {
	case models.MarketWB:
		ok = strings.Contains(lower, "wildberries.ru") || strings.Contains(lower, "wb.ru")
	case models.MarketOzon:
		ok = strings.Contains(lower, "ozon.ru")
	}

	if !ok {
		logger.WithComponentAndFields("batch", logger.Fields{
			"market": market,
			"link":   link,
		}).Warn("Ссылка не соответствует маркетплейсу, отброшена")
		return "", false
	}
	return link, true
}

// Item - товар в формате, который принимает парсер.
type Item struct {
	ProductID int64
	Code      string
	Name      string
	Linkset   []string
	AccountID string
}

type Batch struct {
	TaskID string
	Market models.Market
	Items  []Item
}

func (b Batch) Codes() []string {
	codes := make([]string, len(b.Items))
	for i, item := range b.Items {
		codes[i] = item.Code
	}
	return codes
}

func (b Batch) ParserProducts() []models.ParserProduct {
	products := make([]models.ParserProduct, len(b.Items))
	for i, item := range b.Items {
		linkset := item.Linkset
		if linkset == nil {
			linkset = []string{}
		}
		products[i] = models.ParserProduct{
			Code:      item.Code,
			Name:      item.Name,
			Linkset:   linkset,
			AccountID: item.AccountID,
		}
	}
	return products
}

// Plan описывает предстоящую отправку для логов.
type Plan struct {
	TotalProducts  int
	BatchSize      int
	TotalBatches   int
	EstimatedDelay time.Duration
}

func NewPlan(total, size int, delay time.Duration) Plan {
	size = ValidateBatchSize(size)
	batches := (total + size - 1) / size
	var wait time.Duration
	if batches > 1 {
		wait = time.Duration(batches-1) * delay
	}
	return Plan{
		TotalProducts:  total,
		BatchSize:      size,
		TotalBatches:   batches,
		EstimatedDelay: wait,
	}
}

type Builder struct {
	ids *TaskIDGenerator
	now func() time.Time
}

func NewBuilder(ids *TaskIDGenerator, now func() time.Time) *Builder {
	if ids == nil {
		ids = NewTaskIDGenerator()
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{ids: ids, now: now}
}

// Batches возвращает итератор по пакетам. Task_id назначается в момент выдачи пакета.
func (b *Builder) Batches(products []models.Product, account models.Account, size int) *Iterator {
	return &Iterator{
		builder:  b,
		products: products,
		account:  account,
		size:     ValidateBatchSize(size),
	}
}

// Iterator однопроходный, повторно не запускается.
type Iterator struct {
	builder  *Builder
	products []models.Product
	account  models.Account
	size     int
	pos      int
}

func (it *Iterator) Next() (Batch, bool) {
	if it.pos >= len(it.products) {
		return Batch{}, false
	}

	end := it.pos + it.size
	if end > len(it.products) {
		end = len(it.products)
	}
	chunk := it.products[it.pos:end]
	it.pos = end

	items := make([]Item, 0, len(chunk))
	for _, p := range chunk {
		var linkset []string
		if link, ok := ValidLink(p.Link(), it.account.Market); ok {
			linkset = []string{link}
		}
		items = append(items, Item{
			ProductID: p.ID,
			Code:      p.ProductCode,
			Name:      p.ProductName,
			Linkset:   linkset,
			AccountID: it.account.AccountID,
		})
	}

	return Batch{
		TaskID: it.builder.ids.Next(it.account.ClientID, it.account.Market, it.builder.now()),
		Market: it.account.Market,
		Items:  items,
	}, true
}
