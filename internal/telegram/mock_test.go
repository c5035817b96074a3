package telegram

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"

	"github.com/yproz/tg-bots/internal/app_errors"
	"github.com/yproz/tg-bots/internal/catalog"
	"github.com/yproz/tg-bots/internal/models"
	"github.com/yproz/tg-bots/internal/summary"
	"github.com/yproz/tg-bots/internal/telegram/report"
)

// mockBotAPI - мок botAPI.
type mockBotAPI struct {
	mock.Mock
}

func (m *mockBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockBotAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	args := m.Called(endpoint, params)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockBotAPI) UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error) {
	args := m.Called(endpoint, params, files)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockBotAPI) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.String(0), args.Error(1)
}

func newMockAPI() *mockBotAPI {
	m := &mockBotAPI{}
	m.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	m.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
	m.On("MakeRequest", mock.Anything, mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
	m.On("UploadFiles", mock.Anything, mock.Anything, mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
	return m
}

// sentTexts - тексты сообщений, отправленных через Send.
func (m *mockBotAPI) sentTexts() []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method != "Send" {
			continue
		}
		if msg, ok := call.Arguments.Get(0).(tgbotapi.MessageConfig); ok {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func (m *mockBotAPI) sentDocuments() []tgbotapi.DocumentConfig {
	var docs []tgbotapi.DocumentConfig
	for _, call := range m.Calls {
		if call.Method != "Send" {
			continue
		}
		if doc, ok := call.Arguments.Get(0).(tgbotapi.DocumentConfig); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (m *mockBotAPI) lastText() string {
	texts := m.sentTexts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	clients  map[string]models.Client
	ensured  []string
	accounts []models.Account
	topics   map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients: map[string]models.Client{
			"SEB": {ID: "SEB", Name: "SEB", GroupChatID: -100},
		},
		topics: map[string]int64{"fm": 0},
	}
}

func (f *fakeStore) GetClient(_ context.Context, id string) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return nil, app_errors.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) ListClients(context.Context) ([]models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Client
	for _, c := range f.clients {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) UpsertClient(_ context.Context, c models.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
	return nil
}

func (f *fakeStore) EnsureClient(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, id)
	return nil
}

func (f *fakeStore) UpsertAccount(_ context.Context, a models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, a)
	return nil
}

func (f *fakeStore) SetAccountTopic(_ context.Context, accountID string, topicID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.topics[accountID]; !ok {
		return false, nil
	}
	f.topics[accountID] = topicID
	return true, nil
}

type exportCall struct {
	clientID string
	day      time.Time
	market   *models.Market
}

type fakeExporter struct {
	mu    sync.Mutex
	calls []exportCall
	empty bool
}

func (f *fakeExporter) Build(_ context.Context, clientID string, day time.Time, market *models.Market) (*report.Export, error) {
	f.mu.Lock()
	f.calls = append(f.calls, exportCall{clientID, day, market})
	f.mu.Unlock()

	if f.empty {
		return nil, app_errors.ErrNoData
	}
	date := day.Format("2006-01-02")
	return &report.Export{
		FileName: report.FileName(clientID, date, market),
		Caption:  report.Caption(date, market),
		Data:     []byte("xlsx"),
		Stats:    summary.Stats{Total: 1},
	}, nil
}

type fakeImporter struct {
	got    []byte
	result *catalog.Result
	err    error
}

func (f *fakeImporter) Import(_ context.Context, r io.Reader) (*catalog.Result, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	f.got = buf.Bytes()
	return f.result, f.err
}

type fakePipeline struct {
	mu        sync.Mutex
	runs      []string
	checked   int
	completed int
}

func (f *fakePipeline) CollectRun(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runID)
	return nil
}

func (f *fakePipeline) CheckAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked++
	return f.completed, nil
}
