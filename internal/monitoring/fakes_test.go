package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yproz/tg-bots/internal/batch"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/parser"
)

type memStore struct {
	mu       sync.Mutex
	clients  []models.Client
	accounts map[string][]models.Account
	products map[int64][]models.Product
	orders   []models.Order
	results  []models.Result
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string][]models.Account{},
		products: map[int64][]models.Product{},
	}
}

func (s *memStore) ListClientsWithParserKey(context.Context) ([]models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Client
	for _, c := range s.clients {
		if c.HasParserKey() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListAccounts(_ context.Context, clientID string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[clientID], nil
}

func (s *memStore) ListProducts(_ context.Context, _ string, accountID int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[accountID], nil
}

func (s *memStore) SaveOrderWithResults(_ context.Context, order models.Order, results []models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, o := range s.orders {
		if o.TaskID == order.TaskID {
			return errors.New("duplicate key value violates unique constraint \"uq_order\"")
		}
	}
	order.ID = int64(len(s.orders) + 1)
	s.orders = append(s.orders, order)
	s.results = append(s.results, results...)
	return nil
}

func (s *memStore) ListPendingOrders(_ context.Context, clientID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.ClientID == clientID && o.Status == models.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) UpdateShowcasePrice(_ context.Context, clientID, taskID, code string, price decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.results {
		r := &s.results[i]
		if r.ClientID == clientID && r.TaskID == taskID && r.ProductCode == code {
			r.ShowcasePrice = decimal.NewNullDecimal(price)
			n++
		}
	}
	return n, nil
}

func (s *memStore) CompleteOrder(_ context.Context, taskID, reportURL string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		o := &s.orders[i]
		if o.TaskID == taskID && o.Status == models.OrderStatusPending {
			o.Status = models.OrderStatusCompleted
			o.ReportURL = &reportURL
			o.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) result(code string) models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.ProductCode == code {
			return r
		}
	}
	return models.Result{}
}

func (s *memStore) snapshotOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.orders...)
}

type fakePrices map[string]int

func (f fakePrices) FetchPrices(_ context.Context, _ models.Account, codes []string) map[string]int {
	out := map[string]int{}
	for _, code := range codes {
		if p, ok := f[code]; ok {
			out[code] = p
		}
	}
	return out
}

// fakeParser подменяет шлюз парсера без сети.
type fakeParser struct {
	mu        sync.Mutex
	status    int
	submitted []batch.Batch
	tasks     map[string]parser.Tasks
	tasksErr  map[string]error
	reports   map[string]parser.Report
	fetched   []string
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		status:   200,
		tasks:    map[string]parser.Tasks{},
		tasksErr: map[string]error{},
		reports:  map[string]parser.Report{},
	}
}

func (f *fakeParser) Submit(_ context.Context, _ models.Client, _ models.Account, b batch.Batch) (int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, b)
	return f.status, "", nil
}

func (f *fakeParser) LastTasks(_ context.Context, apiKey string) (parser.Tasks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tasksErr[apiKey]; err != nil {
		return nil, err
	}
	return f.tasks[apiKey], nil
}

func (f *fakeParser) FetchReport(_ context.Context, url string) (parser.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	report, ok := f.reports[url]
	if !ok {
		return parser.Report{}, errors.New("report download failed")
	}
	return report, nil
}

type summaryCall struct {
	clientID string
	force    bool
}

type fakeSummary struct {
	mu    sync.Mutex
	calls []summaryCall
}

func (f *fakeSummary) Send(_ context.Context, clientID string, force bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, summaryCall{clientID, force})
	return 1, nil
}

func (f *fakeSummary) snapshot() []summaryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]summaryCall(nil), f.calls...)
}

func strPtr(s string) *string { return &s }

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// sebStore - клиент SEB с аккаунтом ozon "fm" и двумя товарами.
func sebStore() *memStore {
	s := newMemStore()
	s.clients = []models.Client{
		{ID: "SEB", Name: "SEB", GroupChatID: -100, ParserAPIKey: strPtr("seb-key")},
		{ID: "NOKEY", Name: "Без ключа"},
	}
	s.accounts["SEB"] = []models.Account{
		{ID: 1, ClientID: "SEB", Market: models.MarketOzon, AccountID: "fm", Region: "Москва"},
	}
	s.accounts["NOKEY"] = []models.Account{
		{ID: 2, ClientID: "NOKEY", Market: models.MarketWB, AccountID: "x"},
	}
	s.products[1] = []models.Product{
		{ID: 11, ClientID: "SEB", AccountID: 1, ProductCode: "P1", ProductName: "Товар 1", ProductLink: strPtr("https://www.ozon.ru/product/p1")},
		{ID: 12, ClientID: "SEB", AccountID: 1, ProductCode: "P2", ProductName: "Товар 2"},
	}
	s.products[2] = []models.Product{{ID: 21, ClientID: "NOKEY", AccountID: 2, ProductCode: "X1"}}
	return s
}

func newTestService(store Store, p Parser, summary SummarySender, opts Options) *Service {
	svc := NewService(store, fakePrices{"P1": 200}, p, summary, nil, opts)
	svc.now = func() time.Time { return fixedNow }
	return svc
}
