package progress

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Tracker хранит ход запусков сбора и проверки заказов для команды /status.
type Tracker struct {
	mu           sync.RWMutex
	runs         map[string]*Run
	messageLimit int
	now          func() time.Time
}

// Run - один запуск сбора цен (по расписанию или через /collect_now).
type Run struct {
	ID             string
	Name           string
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalBatches  int
	SentBatches   int
	FailedBatches int
	Products      int

	EstimatedEndTime time.Time
	Messages         []Message
	IsComplete       bool
	Error            string
}

type Message struct {
	Time    time.Time
	Level   string
	Message string
}

// NewID - идентификатор запуска.
func NewID() string {
	return uuid.NewString()
}

func NewTracker(messageLimit int) *Tracker {
	if messageLimit <= 0 {
		messageLimit = 100
	}
	return &Tracker{
		runs:         make(map[string]*Run),
		messageLimit: messageLimit,
		now:          time.Now,
	}
}

func (t *Tracker) Start(id, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	run := &Run{
		ID:             id,
		Name:           name,
		StartTime:      now,
		LastUpdateTime: now,
		Messages:       make([]Message, 0, 8),
	}
	t.addMessage(run, LevelInfo, fmt.Sprintf("Запуск '%s' начат", name))
	t.runs[id] = run
}

// Plan добавляет к запуску ожидаемое число пачек.
func (t *Tracker) Plan(id string, batches, products int) {
	t.update(id, func(run *Run) {
		run.TotalBatches += batches
		run.Products += products
	})
}

// BatchSent учитывает отправленную пачку и пересчитывает оценку окончания.
func (t *Tracker) BatchSent(id string, ok bool, message string) {
	t.update(id, func(run *Run) {
		if ok {
			run.SentBatches++
		} else {
			run.FailedBatches++
		}

		done := run.SentBatches + run.FailedBatches
		if done > 0 && run.TotalBatches > done {
			elapsed := run.LastUpdateTime.Sub(run.StartTime)
			perBatch := elapsed / time.Duration(done)
			run.EstimatedEndTime = run.LastUpdateTime.Add(perBatch * time.Duration(run.TotalBatches-done))
		}

		if message != "" {
			level := LevelInfo
			if !ok {
				level = LevelError
			}
			t.addMessage(run, level, message)
		}
	})
}

func (t *Tracker) Warn(id, message string) {
	t.update(id, func(run *Run) { t.addMessage(run, LevelWarning, message) })
}

// Complete завершает запуск. Непустой withError помечает его как неудачный.
func (t *Tracker) Complete(id, withError string) {
	t.update(id, func(run *Run) {
		run.IsComplete = true
		run.EstimatedEndTime = time.Time{}
		if withError != "" {
			run.Error = withError
			t.addMessage(run, LevelError, fmt.Sprintf("Запуск завершен с ошибкой: %s", withError))
			return
		}
		duration := run.LastUpdateTime.Sub(run.StartTime).Round(time.Second)
		t.addMessage(run, LevelInfo, fmt.Sprintf("Запуск завершен за %s. Пачек: %d, отправлено: %d, с ошибками: %d",
			duration, run.TotalBatches, run.SentBatches, run.FailedBatches))
	})
}

// Get возвращает копию запуска или nil.
func (t *Tracker) Get(id string) *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[id]
	if !ok {
		return nil
	}
	return run.copy()
}

// Latest - последние запуски, новые первыми.
func (t *Tracker) Latest(limit int) []*Run {
	t.mu.RLock()
	runs := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		runs = append(runs, run.copy())
	}
	t.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// Cleanup удаляет завершенные запуски старше olderThan.
func (t *Tracker) Cleanup(olderThan time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-olderThan)
	for id, run := range t.runs {
		if run.IsComplete && run.LastUpdateTime.Before(cutoff) {
			delete(t.runs, id)
		}
	}
}

func (t *Tracker) update(id string, fn func(run *Run)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return
	}
	run.LastUpdateTime = t.now()
	fn(run)
}

func (t *Tracker) addMessage(run *Run, level, message string) {
	if len(run.Messages) >= t.messageLimit {
		run.Messages = run.Messages[1:]
	}
	run.Messages = append(run.Messages, Message{Time: t.now(), Level: level, Message: message})
}

func (r *Run) copy() *Run {
	c := *r
	c.Messages = make([]Message, len(r.Messages))
	copy(c.Messages, r.Messages)
	return &c
}
