package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yproz/tg-bots/internal/logger"
)

const component = "scheduler"

// Jobs - плановые задачи конвейера.
type Jobs interface {
	CollectAll(ctx context.Context) error
	CheckAll(ctx context.Context) (int, error)
}

// Scheduler запускает сбор и проверку отчетов по cron-расписанию (UTC, с секундами).
type Scheduler struct {
	jobs        Jobs
	collectSpec string
	checkSpec   string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewScheduler(jobs Jobs, collectSpec, checkSpec string) *Scheduler {
	return &Scheduler{
		jobs:        jobs,
		collectSpec: collectSpec,
		checkSpec:   checkSpec,
	}
}

// CronParser - формат расписаний: 6 полей с секундами плюс дескрипторы (@every 3m).
func CronParser() cron.Parser {
	return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Start регистрирует задачи и запускает cron. Задачи получают ctx и
// прекращают работу при его отмене.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logger.WithComponent(component).Warn("Планировщик уже запущен")
		return nil
	}

	cronLog := cron.PrintfLogger(logger.WithComponent(component))
	c := cron.New(
		cron.WithParser(CronParser()),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLog),
		// Recover внутри SkipIfStillRunning: иначе паника теряет токен и задача больше не запускается
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	if _, err := c.AddFunc(s.collectSpec, func() { s.runCollect(ctx) }); err != nil {
		return fmt.Errorf("registering collect job %q: %w", s.collectSpec, err)
	}
	if _, err := c.AddFunc(s.checkSpec, func() { s.runCheck(ctx) }); err != nil {
		return fmt.Errorf("registering check job %q: %w", s.checkSpec, err)
	}

	c.Start()
	s.cron = c
	s.running = true

	logger.WithComponentAndFields(component, logger.Fields{
		"collect": s.collectSpec,
		"check":   s.checkSpec,
	}).Info("Планировщик запущен")
	return nil
}

// Stop останавливает cron и ждет завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	logger.WithComponent(component).Info("Планировщик остановлен")
}

func (s *Scheduler) runCollect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.jobs.CollectAll(ctx); err != nil {
		logger.WithComponent(component).WithError(err).Error("Сбор цен завершился с ошибкой")
	}
}

func (s *Scheduler) runCheck(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	completed, err := s.jobs.CheckAll(ctx)
	if err != nil {
		logger.WithComponent(component).WithError(err).Error("Проверка отчетов завершилась с ошибкой")
		return
	}
	if completed > 0 {
		logger.WithComponent(component).WithField("completed", completed).Info("Проверка отчетов завершена")
	}
}
