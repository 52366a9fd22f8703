package kafka

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// AttemptCounter 记录任务失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

type redisAttemptCounter struct {
	rdb *redis.Client
}

// NewRedisAttemptCounter 使用 Redis 计数，多个消费者实例共享。
func NewRedisAttemptCounter(rdb *redis.Client) AttemptCounter {
	return &redisAttemptCounter{rdb: rdb}
}

func (c *redisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, attemptsTTL).Err()
	return n, nil
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) {
	_ = c.rdb.Del(ctx, key).Err()
}

type memoryAttemptCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryAttemptCounter 进程内计数，仅适用于单实例。
func NewMemoryAttemptCounter() AttemptCounter {
	return &memoryAttemptCounter{counts: make(map[string]int64)}
}

func (c *memoryAttemptCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memoryAttemptCounter) Reset(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
}
