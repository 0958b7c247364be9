package parser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/types"
)

// countingEmbedder 按文本长度生成确定的向量，并记录每次调用的输入
type countingEmbedder struct {
	mu      sync.Mutex
	dim     int
	calls   [][]string
	failN   int
	failErr error
}

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.failN > 0 {
		c.failN--
		return nil, c.failErr
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, c.dim)
		v[0] = float64(len(t))
		out[i] = v
	}
	return out, nil
}

func TestEmbeddingService_ZeroVectorForEmptyText(t *testing.T) {
	emb := &countingEmbedder{dim: 4}
	svc, err := NewEmbeddingService(emb, "m", 4)
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), " \n \n ")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, vec)
	assert.Empty(t, emb.calls, "空文本不应调用embedding服务")
}

func TestEmbeddingService_NormalizesDedupesAndBatches(t *testing.T) {
	emb := &countingEmbedder{dim: 2}
	svc, err := NewEmbeddingService(emb, "m", 2, WithBatchSize(2))
	require.NoError(t, err)

	texts := []string{"go\ndev", "go dev", "", "rust", "kafka"}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	assert.Equal(t, vectors[0], vectors[1], "归一化后相同的文本结果一致")
	assert.Equal(t, []float64{0, 0}, vectors[2])
	assert.Equal(t, 4.0, vectors[3][0])
	assert.Equal(t, [][]string{{"go dev", "rust"}, {"kafka"}}, emb.calls)
}

func TestEmbeddingService_UsesCache(t *testing.T) {
	emb := &countingEmbedder{dim: 2}
	cache := NewMemoryVectorCache(10)
	svc, err := NewEmbeddingService(emb, "m", 2, WithVectorCache(cache, time.Minute))
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	_, err = svc.EmbedBatch(context.Background(), []string{"bb", "ccc"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, emb.calls, "缓存命中的文本不应再次请求")
	assert.Equal(t, 3, cache.Len())
}

func TestEmbeddingService_DimensionMismatch(t *testing.T) {
	emb := &countingEmbedder{dim: 3}
	svc, err := NewEmbeddingService(emb, "m", 2)
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProvider)
	assert.True(t, strings.Contains(err.Error(), "维度"))
}

func TestEmbeddingService_RetriesTransientErrors(t *testing.T) {
	emb := &countingEmbedder{dim: 2, failN: 1, failErr: &types.ProviderError{Op: "调用", StatusCode: 503, Err: errors.New("busy")}}
	svc, err := NewEmbeddingService(emb, "m", 2)
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, emb.calls, 2)

	emb = &countingEmbedder{dim: 2, failN: 5, failErr: &types.ProviderError{Op: "调用", StatusCode: 401, Err: errors.New("bad key")}}
	svc, err = NewEmbeddingService(emb, "m", 2)
	require.NoError(t, err)
	_, err = svc.Embed(context.Background(), "text")
	require.ErrorIs(t, err, types.ErrProvider)
	assert.Len(t, emb.calls, 1, "401不应重试")
}

func TestMemoryVectorCache_EvictsAndExpires(t *testing.T) {
	cache := NewMemoryVectorCache(2)
	now := time.Unix(100, 0)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.SetVectors(ctx, map[string][]float64{"a": {1}}, time.Second))
	require.NoError(t, cache.SetVectors(ctx, map[string][]float64{"b": {2}}, 0))
	require.NoError(t, cache.SetVectors(ctx, map[string][]float64{"c": {3}}, 0))

	got, err := cache.GetVectors(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Nil(t, got[0], "最早写入的条目被淘汰")
	assert.Equal(t, []float64{2}, got[1])

	require.NoError(t, cache.SetVectors(ctx, map[string][]float64{"b": {2}}, time.Second))
	now = now.Add(2 * time.Second)
	got, err = cache.GetVectors(ctx, []string{"b"})
	require.NoError(t, err)
	assert.Nil(t, got[0], "过期条目不返回")
}
