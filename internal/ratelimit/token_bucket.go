package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// TokenBucket 令牌桶限流器，按每分钟请求数配置
type TokenBucket struct {
	rate           float64 // 每秒生成的令牌数
	capacity       float64
	tokens         float64
	lastRefillTime time.Time
	mutex          sync.Mutex

	retryWaitTime time.Duration
	maxRetries    int
	retryable     func(error) bool
	now           func() time.Time
}

// NewTokenBucket 创建令牌桶。qpm<=0 时不限流；capacity<=0 时取 qpm 的一半
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = qpm / 2
		if capacity <= 0 {
			capacity = 1
		}
	}
	return &TokenBucket{
		rate:           float64(qpm) / 60.0,
		capacity:       float64(capacity),
		tokens:         float64(capacity),
		lastRefillTime: time.Now(),
		retryWaitTime:  time.Second,
		maxRetries:     3,
		retryable:      IsRetryableError,
		now:            time.Now,
	}
}

// WithRetryPolicy 设置重试策略；retryable 为 nil 时使用默认判断
func (tb *TokenBucket) WithRetryPolicy(waitTime time.Duration, maxRetries int, retryable func(error) bool) *TokenBucket {
	tb.retryWaitTime = waitTime
	tb.maxRetries = maxRetries
	if retryable != nil {
		tb.retryable = retryable
	}
	return tb
}

func (tb *TokenBucket) unlimited() bool {
	return tb == nil || tb.rate <= 0
}

// refill 根据经过的时间填充令牌
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	tb.lastRefillTime = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Allow 判断是否允许通过一个请求，消耗一个令牌
func (tb *TokenBucket) Allow() bool {
	if tb.unlimited() {
		return true
	}
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Wait 阻塞直到有令牌可用或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if tb.unlimited() {
		return ctx.Err()
	}
	for {
		tb.mutex.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens -= 1.0
			tb.mutex.Unlock()
			return nil
		}
		waitTime := time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mutex.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RetryWithBackoff 取得令牌后执行 fn，可重试的错误按指数退避重试
func (tb *TokenBucket) RetryWithBackoff(ctx context.Context, fn func() error) error {
	maxRetries, wait, retryable := 0, time.Second, IsRetryableError
	if tb != nil {
		maxRetries, wait, retryable = tb.maxRetries, tb.retryWaitTime, tb.retryable
	}

	var err error
	for retry := 0; retry <= maxRetries; retry++ {
		if err = tb.Wait(ctx); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || retry >= maxRetries {
			return err
		}

		timer := time.NewTimer(wait * time.Duration(1<<uint(retry)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// IsRetryableError 根据错误信息判断是否值得重试
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	errStr := err.Error()
	for _, substr := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"EOF",
		"connection refused",
		"429",
		"rate limit",
		"服务器繁忙",
	} {
		if strings.Contains(errStr, substr) {
			return true
		}
	}
	return false
}
