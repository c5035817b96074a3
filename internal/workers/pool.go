package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/yproz/tg-bots/internal/logger"
)

// Task - единица работы пула, например обход одного аккаунта.
type Task func(ctx context.Context) error

// Pool - фиксированное число горутин, разбирающих задачи из общей очереди.
type Pool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func()),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit ставит задачу в очередь. Канал получает ровно одно значение:
// результат задачи или ошибку отмены, если задача так и не запустилась.
func (p *Pool) Submit(ctx context.Context, task Task) <-chan error {
	done := make(chan error, 1)

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithComponent("workers").Errorf("Паника в задаче: %v", r)
				done <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		done <- task(ctx)
	}

	select {
	case p.tasks <- wrapped:
	case <-ctx.Done():
		done <- ctx.Err()
	case <-p.ctx.Done():
		done <- context.Canceled
	}
	return done
}

// Run выполняет задачи параллельно и возвращает ошибки в порядке задач.
func (p *Pool) Run(ctx context.Context, tasks []Task) []error {
	results := make([]<-chan error, len(tasks))
	for i, task := range tasks {
		results[i] = p.Submit(ctx, task)
	}

	errs := make([]error, len(tasks))
	for i, ch := range results {
		errs[i] = <-ch
	}
	return errs
}

// Shutdown дожидается воркеров. Повторный вызов безопасен.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}
