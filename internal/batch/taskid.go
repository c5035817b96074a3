package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/yproz/tg-bots/internal/models"
)

const (
	taskIDLayout   = "20060102150405"
	pruneThreshold = 1024
	pruneAge       = time.Minute
)

type issuedID struct {
	count int
	at    time.Time
}

// TaskIDGenerator выдает task_id вида {client}{O|W}{yyyyMMddHHmmss}.
// Два пакета одного клиента и маркетплейса в одну секунду получают суффиксы -2, -3 и т.д.
type TaskIDGenerator struct {
	mu     sync.Mutex
	issued map[string]issuedID
}

func NewTaskIDGenerator() *TaskIDGenerator {
	return &TaskIDGenerator{
		issued: make(map[string]issuedID),
	}
}

// Next возвращает уникальный в пределах процесса task_id.
func (g *TaskIDGenerator) Next(clientID string, market models.Market, at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	at = at.UTC()
	base := BaseTaskID(clientID, market, at)

	if len(g.issued) > pruneThreshold {
		g.prune(at)
	}

	entry := g.issued[base]
	entry.count++
	entry.at = at
	g.issued[base] = entry

	if entry.count == 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, entry.count)
}

func (g *TaskIDGenerator) prune(now time.Time) {
	for key, entry := range g.issued {
		if now.Sub(entry.at) > pruneAge {
			delete(g.issued, key)
		}
	}
}

// BaseTaskID - task_id без защиты от совпадений.
func BaseTaskID(clientID string, market models.Market, at time.Time) string {
	return clientID + market.Letter() + at.UTC().Format(taskIDLayout)
}
