package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"

	"admate-rag-go/pkg/log"
)

// defaultSharedTimeout bounds a shared in-flight request when no timeout is configured.
const defaultSharedTimeout = 30 * time.Second

type cachedClient struct {
	next    Client
	rdb     *redis.Client
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
}

// NewCachedClient wraps next so identical texts are embedded once: concurrent
// callers share one in-flight request and results are kept in Redis for ttl.
// The shared request is bounded by timeout, never by a single caller's context.
// A nil rdb keeps only the in-flight deduplication.
func NewCachedClient(next Client, rdb *redis.Client, ttl, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = defaultSharedTimeout
	}
	return &cachedClient{next: next, rdb: rdb, ttl: ttl, timeout: timeout}
}

func (c *cachedClient) Model() string   { return c.next.Model() }
func (c *cachedClient) Dimensions() int { return c.next.Dimensions() }

func (c *cachedClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%d:%s", c.next.Model(), c.next.Dimensions(), hex.EncodeToString(sum[:]))
}

// CreateEmbedding serves from Redis when possible. Redis errors never fail the call.
func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) (*Result, error) {
	key := c.cacheKey(text)
	// 共享请求脱离发起者的取消信号，每个调用方只按自己的 ctx 放弃等待
	ch := c.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		if res := c.load(sharedCtx, key); res != nil {
			return res, nil
		}
		res, err := c.next.CreateEmbedding(sharedCtx, text)
		if err != nil {
			return nil, err
		}
		c.store(sharedCtx, key, res)
		return res, nil
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.Err != nil {
		return nil, r.Err
	}
	res := r.Val.(*Result)
	// 调用方可能修改向量，返回副本
	return &Result{
		Vector:    append([]float32(nil), res.Vector...),
		Model:     res.Model,
		Dimension: res.Dimension,
	}, nil
}

func (c *cachedClient) load(ctx context.Context, key string) *Result {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败: %v", err)
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) != c.next.Dimensions() {
		return nil
	}
	return &Result{Vector: vec, Model: c.next.Model(), Dimension: len(vec)}
}

func (c *cachedClient) store(ctx context.Context, key string, res *Result) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(res.Vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
	}
}
