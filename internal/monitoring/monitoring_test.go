package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/parser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// parserServer эмулирует сервис парсинга: принимает заказы, отдает статусы и отчет.
type parserServer struct {
	*httptest.Server

	mu       sync.Mutex
	orders   []models.SendOrderRequest
	statuses map[string]string
	report   string
}

func newParserServer(t *testing.T) *parserServer {
	ps := &parserServer{statuses: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/send-order", func(w http.ResponseWriter, r *http.Request) {
		var req models.SendOrderRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ps.mu.Lock()
		ps.orders = append(ps.orders, req)
		ps.statuses[req.UserLabel] = "processing"
		ps.mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/get-last50", func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		groups := make([][]map[string]string, 0, len(ps.statuses))
		for label, status := range ps.statuses {
			groups = append(groups, []map[string]string{
				{"userlabel": label},
				{"status": status},
				{"report_json": ps.URL + "/reports/" + label + ".json"},
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(groups))
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		fmt.Fprint(w, ps.report)
	})

	ps.Server = httptest.NewServer(mux)
	return ps
}

func (ps *parserServer) complete(taskID, report string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.statuses[taskID] = "completed"
	ps.report = report
}

func TestPipeline_SEBEndToEnd(t *testing.T) {
	srv := newParserServer(t)
	defer srv.Close()

	store := sebStore()
	summary := &fakeSummary{}
	svc := newTestService(store, parser.NewGateway(srv.Client(), srv.URL, false), summary, Options{BatchSize: 1000})
	defer svc.Close()
	ctx := context.Background()

	require.NoError(t, svc.CollectRun(ctx, "run-1"))

	orders := store.snapshotOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "SEBO20240101120000", orders[0].TaskID)
	assert.Equal(t, models.OrderStatusPending, orders[0].Status)
	assert.Equal(t, models.MarketOzon, orders[0].Market)
	assert.Equal(t, "Москва", orders[0].Region)

	require.Len(t, srv.orders, 1)
	assert.Equal(t, "seb-key", srv.orders[0].APIKey)
	require.Len(t, srv.orders[0].Products, 2)

	p1, p2 := store.result("P1"), store.result("P2")
	assert.True(t, p1.MarketPrice.Equal(decimal.NewFromInt(200)))
	assert.True(t, p2.MarketPrice.IsZero())
	assert.False(t, p1.ShowcasePrice.Valid)
	assert.False(t, p2.ShowcasePrice.Valid)
	assert.Equal(t, int64(11), p1.ProductID)
	assert.Equal(t, int64(12), p2.ProductID)
	require.NotNil(t, p1.ProductLink)
	assert.Equal(t, "https://www.ozon.ru/product/p1", *p1.ProductLink)
	assert.Nil(t, p2.ProductLink)

	run := svc.tracker.Get("run-1")
	require.NotNil(t, run)
	assert.True(t, run.IsComplete)
	assert.Empty(t, run.Error)
	assert.Equal(t, 1, run.TotalBatches)
	assert.Equal(t, 1, run.SentBatches)
	assert.Equal(t, 2, run.Products)

	// отчет еще не готов
	completed, err := svc.CheckAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Empty(t, summary.snapshot())

	srv.complete("SEBO20240101120000", `{"data":[{"code":"P1","offers":[{"Price":"150","PromoPrice":""}]}]}`)

	completed, err = svc.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	p1, p2 = store.result("P1"), store.result("P2")
	require.True(t, p1.ShowcasePrice.Valid)
	assert.True(t, p1.ShowcasePrice.Decimal.Equal(decimal.NewFromInt(150)))
	assert.False(t, p2.ShowcasePrice.Valid)

	orders = store.snapshotOrders()
	assert.Equal(t, models.OrderStatusCompleted, orders[0].Status)
	require.NotNil(t, orders[0].ReportURL)
	assert.Equal(t, srv.URL+"/reports/SEBO20240101120000.json", *orders[0].ReportURL)
	assert.Equal(t, []summaryCall{{clientID: "SEB", force: true}}, summary.snapshot())

	// повторная проверка не трогает завершенный заказ
	completed, err = svc.CheckAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Len(t, summary.snapshot(), 1)
}

func TestCollect_SkipsOrderOnRejectedBatch(t *testing.T) {
	store := sebStore()
	p := newFakeParser()
	p.status = http.StatusInternalServerError
	svc := newTestService(store, p, nil, Options{BatchSize: 1000})
	defer svc.Close()

	require.NoError(t, svc.CollectRun(context.Background(), "run-2"))

	assert.Empty(t, store.snapshotOrders())
	assert.Len(t, p.submitted, 1)

	run := svc.tracker.Get("run-2")
	require.NotNil(t, run)
	assert.Equal(t, 1, run.FailedBatches)
	assert.Equal(t, 0, run.SentBatches)
	assert.Contains(t, run.Error, "все аккаунты (1)")
}

func TestCollect_SplitsIntoBatches(t *testing.T) {
	store := sebStore()
	store.products[1] = append(store.products[1],
		models.Product{ID: 13, ClientID: "SEB", AccountID: 1, ProductCode: "P3"})
	p := newFakeParser()
	svc := newTestService(store, p, nil, Options{BatchSize: 2})
	defer svc.Close()

	require.NoError(t, svc.CollectRun(context.Background(), "run-3"))

	require.Len(t, p.submitted, 2)
	assert.Equal(t, []string{"P1", "P2"}, p.submitted[0].Codes())
	assert.Equal(t, []string{"P3"}, p.submitted[1].Codes())

	orders := store.snapshotOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, "SEBO20240101120000", orders[0].TaskID)
	assert.Equal(t, "SEBO20240101120000-2", orders[1].TaskID)

	run := svc.tracker.Get("run-3")
	assert.Equal(t, 2, run.TotalBatches)
	assert.Equal(t, 2, run.SentBatches)
}

func TestCollect_SaveFailureCountsAsFailedBatch(t *testing.T) {
	store := sebStore()
	store.saveErr = errors.New("db down")
	svc := newTestService(store, newFakeParser(), nil, Options{BatchSize: 1000})
	defer svc.Close()

	require.NoError(t, svc.CollectRun(context.Background(), "run-4"))
	run := svc.tracker.Get("run-4")
	assert.Equal(t, 1, run.FailedBatches)
	assert.Contains(t, run.Error, "все аккаунты")
}

func TestCollect_CanceledContext(t *testing.T) {
	svc := newTestService(sebStore(), newFakeParser(), nil, Options{BatchSize: 1000})
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.CollectRun(ctx, "run-5"), context.Canceled)
	assert.True(t, svc.tracker.Get("run-5").IsComplete)
}

func pendingOrder(clientID, taskID string) models.Order {
	return models.Order{ClientID: clientID, TaskID: taskID, Market: models.MarketOzon, Status: models.OrderStatusPending}
}

func TestCheck_NothingUpdatedKeepsPending(t *testing.T) {
	store := sebStore()
	store.orders = []models.Order{pendingOrder("SEB", "T1")}
	store.results = []models.Result{{ClientID: "SEB", TaskID: "T1", ProductCode: "P1"}}

	p := newFakeParser()
	p.tasks["seb-key"] = parser.Tasks{"T1": {TaskID: "T1", Status: "completed", ReportURL: "u1"}}
	p.reports["u1"] = parser.Report{Items: []parser.ReportItem{{Code: "PX"}}}
	summary := &fakeSummary{}
	svc := newTestService(store, p, summary, Options{})
	defer svc.Close()

	completed, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, models.OrderStatusPending, store.snapshotOrders()[0].Status)
	assert.Empty(t, summary.snapshot())
}

func TestCheck_ReportNotReadyOrMissing(t *testing.T) {
	store := sebStore()
	store.orders = []models.Order{pendingOrder("SEB", "T1"), pendingOrder("SEB", "T2"), pendingOrder("SEB", "T3")}

	p := newFakeParser()
	p.tasks["seb-key"] = parser.Tasks{
		"T1": {TaskID: "T1", Status: "processing", ReportURL: "u1"},
		"T2": {TaskID: "T2", Status: "completed"},
	}
	svc := newTestService(store, p, nil, Options{})
	defer svc.Close()

	completed, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Empty(t, p.fetched)
}

func TestCheck_DownloadFailureKeepsPending(t *testing.T) {
	store := sebStore()
	store.orders = []models.Order{pendingOrder("SEB", "T1")}

	p := newFakeParser()
	p.tasks["seb-key"] = parser.Tasks{"T1": {TaskID: "T1", Status: "completed", ReportURL: "missing"}}
	svc := newTestService(store, p, nil, Options{})
	defer svc.Close()

	completed, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, []string{"missing"}, p.fetched)
	assert.Equal(t, models.OrderStatusPending, store.snapshotOrders()[0].Status)
}

func TestCheck_ClientFailureDoesNotStopLoop(t *testing.T) {
	store := sebStore()
	store.clients = append(store.clients, models.Client{ID: "ACME", ParserAPIKey: strPtr("acme-key")})
	store.orders = []models.Order{pendingOrder("SEB", "T1"), pendingOrder("ACME", "A1")}
	store.results = []models.Result{{ClientID: "ACME", TaskID: "A1", ProductCode: "Z"}}

	p := newFakeParser()
	p.tasksErr["seb-key"] = errors.New("parser unavailable")
	p.tasks["acme-key"] = parser.Tasks{"A1": {TaskID: "A1", Status: "completed", ReportURL: "ua"}}
	p.reports["ua"] = parser.Report{Items: []parser.ReportItem{{
		Code:   "Z",
		Offers: []parser.Offer{{Price: gjson.Parse(`"99"`), PromoPrice: gjson.Parse(`null`)}},
	}}}
	summary := &fakeSummary{}
	svc := newTestService(store, p, summary, Options{})
	defer svc.Close()

	completed, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.True(t, store.result("Z").ShowcasePrice.Decimal.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, []summaryCall{{clientID: "ACME", force: true}}, summary.snapshot())

	for _, o := range store.snapshotOrders() {
		if o.ClientID == "SEB" {
			assert.Equal(t, models.OrderStatusPending, o.Status)
		}
	}
}

func TestCheckClient_WithoutParserKey(t *testing.T) {
	store := sebStore()
	store.orders = []models.Order{{ClientID: "NOKEY", TaskID: "N1", Status: models.OrderStatusPending}}
	svc := newTestService(store, newFakeParser(), nil, Options{})
	defer svc.Close()

	completed, err := svc.CheckClient(context.Background(), models.Client{ID: "NOKEY", ParserAPIKey: strPtr("")})
	require.ErrorIs(t, err, app_errors.ErrMissingCredentials)
	assert.Equal(t, app_errors.KindValidation, app_errors.KindOf(err))
	assert.Zero(t, completed)
	assert.Equal(t, models.OrderStatusPending, store.snapshotOrders()[0].Status)
}
