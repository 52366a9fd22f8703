package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"admate-rag-go/internal/config"
	"admate-rag-go/pkg/log"
)

// OpenRedis 初始化 Redis 客户端并测试连接
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
