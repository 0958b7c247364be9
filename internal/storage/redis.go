package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"talent-match/internal/config"
)

// ErrLockNotAcquired 等待分布式锁超时
var ErrLockNotAcquired = errors.New("未能获取分布式锁")

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("talent-match/storage/redis")

// releaseLockScript 如果key存在且值匹配，则删除key
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Redis wraps the Redis client，提供向量缓存和分布式锁
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetVectors 批量读取向量缓存，返回与 keys 等长的结果，未命中或无法解析的位置为 nil
func (r *Redis) GetVectors(ctx context.Context, keys []string) ([][]float64, error) {
	out := make([][]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ctx, span := redisTracer.Start(ctx, "Redis.GetVectors",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "MGET"),
			attribute.Int("db.redis.key_count", len(keys)),
		))
	defer span.End()

	vals, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("读取向量缓存失败: %w", err)
	}

	hits := 0
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(s), &vec); err != nil {
			continue
		}
		out[i] = vec
		hits++
	}
	span.SetAttributes(attribute.Int("cache.hits", hits))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// SetVectors 通过pipeline批量写入向量缓存
func (r *Redis) SetVectors(ctx context.Context, entries map[string][]float64, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	pipe := r.Client.Pipeline()
	for key, vec := range entries {
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("序列化向量失败: %w", err)
		}
		pipe.Set(ctx, key, data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入向量缓存失败: %w", err)
	}
	return nil
}

// AcquireLock 尝试获取一个分布式锁，未获取时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	res, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// WaitLock 轮询获取锁直到成功或上下文结束
func (r *Redis) WaitLock(ctx context.Context, lockKey string, expiration, pollInterval time.Duration) (string, error) {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		value, err := r.AcquireLock(ctx, lockKey, expiration)
		if err != nil {
			return "", fmt.Errorf("获取锁 %s 失败: %w", lockKey, err)
		}
		if value != "" {
			return value, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, lockKey, ctx.Err())
		case <-ticker.C:
		}
	}
}
