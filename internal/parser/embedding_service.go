package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"

	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/ratelimit"
	"talent-match/internal/types"
)

// VectorCache 文本向量缓存。GetVectors 返回与 keys 等长的结果，未命中的位置为 nil
type VectorCache interface {
	GetVectors(ctx context.Context, keys []string) ([][]float64, error)
	SetVectors(ctx context.Context, entries map[string][]float64, ttl time.Duration) error
}

// EmbeddingService 在 embedder 之上处理文本归一化、缓存、分批、限流和维度校验
type EmbeddingService struct {
	embedder  embedding.Embedder
	model     string
	dim       int
	batchSize int

	cache    VectorCache
	cacheTTL time.Duration
	limiter  *ratelimit.TokenBucket
	logger   zerolog.Logger
}

// ServiceOption EmbeddingService 配置项
type ServiceOption func(*EmbeddingService)

// WithVectorCache 设置向量缓存
func WithVectorCache(cache VectorCache, ttl time.Duration) ServiceOption {
	return func(s *EmbeddingService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithRateLimiter 设置调用限流器
func WithRateLimiter(limiter *ratelimit.TokenBucket) ServiceOption {
	return func(s *EmbeddingService) {
		s.limiter = limiter
	}
}

// WithBatchSize 设置单次请求的最大文本数
func WithBatchSize(n int) ServiceOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewEmbeddingService 创建 embedding 服务，dim 为索引使用的固定维度
func NewEmbeddingService(embedder embedding.Embedder, model string, dim int, opts ...ServiceOption) (*EmbeddingService, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder 不能为空")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("向量维度必须大于0: %d", dim)
	}
	s := &EmbeddingService{
		embedder:  embedder,
		model:     model,
		dim:       dim,
		batchSize: 32,
		logger:    logger.Component("embedding_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewTokenBucket(0, 0).WithRetryPolicy(500*time.Millisecond, 2, retryableProviderError)
	}
	return s, nil
}

// Dimensions 向量维度
func (s *EmbeddingService) Dimensions() int {
	return s.dim
}

// NormalizeText 换行替换为空格并去除首尾空白
func NormalizeText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// Embed 获取单条文本的向量，空文本返回零向量
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量获取向量，结果与输入一一对应
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	// 归一化后相同的文本只请求一次
	pending := make(map[string][]int)
	var order []string
	for i, text := range texts {
		normalized := NormalizeText(text)
		if normalized == "" {
			results[i] = make([]float64, s.dim)
			continue
		}
		if _, ok := pending[normalized]; !ok {
			order = append(order, normalized)
		}
		pending[normalized] = append(pending[normalized], i)
	}
	if len(order) == 0 {
		return results, nil
	}

	misses := order
	if s.cache != nil {
		misses = s.fillFromCache(ctx, order, pending, results)
	}

	fresh := make(map[string][]float64, len(misses))
	for start := 0; start < len(misses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		var vectors [][]float64
		err := s.limiter.RetryWithBackoff(ctx, func() error {
			var callErr error
			vectors, callErr = s.embedder.EmbedStrings(ctx, batch)
			return callErr
		})
		if err != nil {
			return nil, types.NewProviderError("批量embedding", 0, err)
		}
		if len(vectors) != len(batch) {
			return nil, types.NewProviderError("批量embedding", 0,
				fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(vectors), len(batch)))
		}

		for j, text := range batch {
			if len(vectors[j]) != s.dim {
				return nil, types.NewProviderError("批量embedding", 0,
					fmt.Errorf("向量维度 %d 与索引维度 %d 不一致", len(vectors[j]), s.dim))
			}
			fresh[text] = vectors[j]
			for _, idx := range pending[text] {
				results[idx] = vectors[j]
			}
		}
	}

	if s.cache != nil && len(fresh) > 0 {
		entries := make(map[string][]float64, len(fresh))
		for text, vec := range fresh {
			entries[s.cacheKey(text)] = vec
		}
		if err := s.cache.SetVectors(ctx, entries, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Int("count", len(entries)).Msg("写入向量缓存失败")
		}
	}

	return results, nil
}

// fillFromCache 用缓存命中填充结果，返回未命中的文本
func (s *EmbeddingService) fillFromCache(ctx context.Context, order []string, pending map[string][]int, results [][]float64) []string {
	keys := make([]string, len(order))
	for i, text := range order {
		keys[i] = s.cacheKey(text)
	}
	cached, err := s.cache.GetVectors(ctx, keys)
	if err != nil || len(cached) != len(keys) {
		if err != nil {
			s.logger.Warn().Err(err).Msg("读取向量缓存失败，直接调用embedding服务")
		}
		return order
	}

	var misses []string
	for i, text := range order {
		if len(cached[i]) != s.dim {
			misses = append(misses, text)
			continue
		}
		for _, idx := range pending[text] {
			results[idx] = cached[i]
		}
	}
	return misses
}

func (s *EmbeddingService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf(constants.KeyEmbeddingVector, s.model, s.dim, hex.EncodeToString(sum[:]))
}

// retryableProviderError 限流、服务端错误和网络错误可以重试
func retryableProviderError(err error) bool {
	var pe *types.ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode == 429 || pe.StatusCode >= 500 {
			return true
		}
		if pe.StatusCode > 0 {
			return false
		}
		return ratelimit.IsRetryableError(pe.Err)
	}
	return ratelimit.IsRetryableError(err)
}

// MemoryVectorCache 进程内向量缓存，超过容量时按写入顺序淘汰
type MemoryVectorCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]memoryEntry
	order    []string
	now      func() time.Time
}

type memoryEntry struct {
	vector    []float64
	expiresAt time.Time
}

// NewMemoryVectorCache 创建进程内向量缓存
func NewMemoryVectorCache(capacity int) *MemoryVectorCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryVectorCache{
		capacity: capacity,
		entries:  make(map[string]memoryEntry, capacity),
		now:      time.Now,
	}
}

// GetVectors 实现 VectorCache
func (c *MemoryVectorCache) GetVectors(_ context.Context, keys []string) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([][]float64, len(keys))
	for i, key := range keys {
		entry, ok := c.entries[key]
		if !ok {
			continue
		}
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			continue
		}
		out[i] = entry.vector
	}
	return out, nil
}

// SetVectors 实现 VectorCache，ttl<=0 表示不过期
func (c *MemoryVectorCache) SetVectors(_ context.Context, entries map[string][]float64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	for key, vec := range entries {
		if _, exists := c.entries[key]; !exists {
			c.order = append(c.order, key)
		}
		c.entries[key] = memoryEntry{vector: vec, expiresAt: expiresAt}
	}
	for len(c.entries) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

// Len 当前缓存条数
func (c *MemoryVectorCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
