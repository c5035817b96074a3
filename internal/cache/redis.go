package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/yproz/tg-bots/internal/logger"
)

const sentValue = "sent"

// Redis хранит отметки об отправке сводок и блокировки клиентов в Redis.
type Redis struct {
	client *redis.Client
	locker *redislock.Client
}

// ConnectRedis открывает клиент и проверяет соединение.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}

	logger.WithComponentAndFields("cache", logger.Fields{"addr": addr, "db": db}).Info("Подключение к Redis установлено")
	return NewRedis(client), nil
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		locker: redislock.New(client),
	}
}

func (r *Redis) IsSent(ctx context.Context, key string) (bool, error) {
	_, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, sentValue, ttl).Err(); err != nil {
		return fmt.Errorf("setting key %s: %w", key, err)
	}
	return nil
}

// Lock берет redislock на ключ. При занятом ключе возвращает ok=false без ошибки.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtaining lock %s: %w", key, err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.WithComponent("cache").WithError(err).Warnf("Не удалось освободить блокировку %s", key)
		}
	}
	return release, true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
