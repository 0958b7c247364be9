package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/gofrs/uuid/v5"

	"talent-match/internal/types"
)

// ChunkIDNamespace 生成确定性分块ID的命名空间，同一职位/简历的同一分块总得到同一个ID
var ChunkIDNamespace = uuid.Must(uuid.FromString("fd6c72c2-5a33-4b53-8e7c-8298f3f5a7e1"))

// ErrDimensionMismatch 查询向量与已存向量维度不一致
var ErrDimensionMismatch = errors.New("向量维度不匹配")

// ChunkStore 向量分块存储。Search 返回的 Distance 为L2距离，升序排列
type ChunkStore interface {
	Name() string
	Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error
	DeleteByOwner(ctx context.Context, tag types.ChunkTag, ownerID string) error
	Search(ctx context.Context, vector []float64, tag types.ChunkTag, limit int) ([]types.ScoredChunk, error)
	// Count ownerID 为空时统计该标签下全部分块
	Count(ctx context.Context, tag types.ChunkTag, ownerID string) (int64, error)
	Clear(ctx context.Context, tag types.ChunkTag) error
}

// ChunkPointID 根据标签、所属实体、内容摘要和序号生成分块ID
func ChunkPointID(tag types.ChunkTag, ownerID, textDigest string, index int) string {
	name := string(tag) + ":" + ownerID + ":" + textDigest + ":" + strconv.Itoa(index)
	return uuid.NewV5(ChunkIDNamespace, name).String()
}

// L2Distance 欧氏距离
func L2Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// sortScored 按距离升序，距离相同按ID
func sortScored(hits []types.ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
}

// MemoryChunkStore 进程内的分块存储，重启后数据丢失
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]types.EmbeddedChunk
}

var _ ChunkStore = (*MemoryChunkStore)(nil)

// NewMemoryChunkStore 创建内存分块存储
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string]types.EmbeddedChunk)}
}

func (m *MemoryChunkStore) Name() string { return "memory" }

func (m *MemoryChunkStore) Upsert(_ context.Context, chunks []types.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		c.Vector = append([]float64(nil), c.Vector...)
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryChunkStore) DeleteByOwner(_ context.Context, tag types.ChunkTag, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.Tag == tag && c.OwnerID == ownerID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MemoryChunkStore) Search(ctx context.Context, vector []float64, tag types.ChunkTag, limit int) ([]types.ScoredChunk, error) {
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]types.ScoredChunk, 0, limit)
	for _, c := range m.chunks {
		if c.Tag != tag {
			continue
		}
		d, err := L2Distance(vector, c.Vector)
		if err != nil {
			return nil, err
		}
		hits = append(hits, types.ScoredChunk{Chunk: c, Distance: d})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortScored(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryChunkStore) Count(_ context.Context, tag types.ChunkTag, ownerID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, c := range m.chunks {
		if c.Tag == tag && (ownerID == "" || c.OwnerID == ownerID) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryChunkStore) Clear(_ context.Context, tag types.ChunkTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.Tag == tag {
			delete(m.chunks, id)
		}
	}
	return nil
}
