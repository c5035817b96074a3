package cache

import (
	"context"
	"sync"
	"time"
)

const cleanInterval = time.Minute

type memoryItem struct {
	expiration time.Time
}

// Memory хранит отметки об отправке в памяти процесса. Используется, когда Redis не настроен.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	locks map[string]time.Time
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemory создает кэш и запускает фоновую очистку устаревших отметок.
// Close останавливает очистку.
func NewMemory() *Memory {
	m := &Memory{
		items: make(map[string]memoryItem),
		locks: make(map[string]time.Time),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.startCleaner()
	return m
}

func (m *Memory) IsSent(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return m.now().Before(item.expiration), nil
}

func (m *Memory) MarkSent(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = memoryItem{expiration: m.now().Add(ttl)}
	return nil
}

// Lock занимает ключ на ttl. ok=false, если ключ уже занят.
func (m *Memory) Lock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, held := m.locks[key]; held && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	m.locks[key] = until

	// снимаем только свою блокировку: после истечения ttl ключ мог занять другой
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, held := m.locks[key]; held && cur.Equal(until) {
			delete(m.locks, key)
		}
	}
	return release, true, nil
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
	return nil
}

func (m *Memory) startCleaner() {
	defer close(m.done)

	ticker := time.NewTicker(cleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanExpired()
		}
	}
}

func (m *Memory) cleanExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, item := range m.items {
		if now.After(item.expiration) {
			delete(m.items, key)
		}
	}
	for key, until := range m.locks {
		if now.After(until) {
			delete(m.locks, key)
		}
	}
}
