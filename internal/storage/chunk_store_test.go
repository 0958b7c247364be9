package storage_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/storage"
	"talent-match/internal/types"
)

func chunk(tag types.ChunkTag, owner string, idx int, vec ...float64) types.EmbeddedChunk {
	return types.EmbeddedChunk{
		ID:      storage.ChunkPointID(tag, owner, "digest", idx),
		Tag:     tag,
		OwnerID: owner,
		Title:   owner + " title",
		Text:    owner + " text",
		Index:   idx,
		Vector:  vec,
	}
}

// chunkStoreContract 两种本地存储共用的行为校验
func chunkStoreContract(t *testing.T, store storage.ChunkStore) {
	ctx := context.Background()

	n, err := store.Count(ctx, types.TagRole, "")
	require.NoError(t, err)
	assert.Zero(t, n, "新建的存储应为空")

	hits, err := store.Search(ctx, []float64{0, 0}, types.TagRole, 3)
	require.NoError(t, err)
	assert.Empty(t, hits, "空存储检索返回空列表")

	require.NoError(t, store.Upsert(ctx, []types.EmbeddedChunk{
		chunk(types.TagRole, "role-a", 0, 0, 0),
		chunk(types.TagRole, "role-a", 1, 3, 4),
		chunk(types.TagRole, "role-b", 0, 1, 0),
		chunk(types.TagResume, "cand-1", 0, 0, 0),
	}))

	// 同ID再次写入不会产生重复
	require.NoError(t, store.Upsert(ctx, []types.EmbeddedChunk{chunk(types.TagRole, "role-b", 0, 1, 0)}))

	n, err = store.Count(ctx, types.TagRole, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = store.Count(ctx, types.TagRole, "role-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	hits, err = store.Search(ctx, []float64{0, 0}, types.TagRole, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "role-a", hits[0].Chunk.OwnerID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
	assert.Equal(t, "role-b", hits[1].Chunk.OwnerID)
	assert.InDelta(t, 1, hits[1].Distance, 1e-9)
	assert.Equal(t, "role-b title", hits[1].Chunk.Title)

	hits, err = store.Search(ctx, []float64{0, 0}, types.TagRole, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.InDelta(t, 5, hits[2].Distance, 1e-9)
	for _, h := range hits {
		assert.Equal(t, types.TagRole, h.Chunk.Tag, "不应返回其他标签的分块")
	}

	_, err = store.Search(ctx, []float64{0, 0, 0}, types.TagRole, 1)
	require.ErrorIs(t, err, storage.ErrDimensionMismatch)

	require.NoError(t, store.DeleteByOwner(ctx, types.TagRole, "role-a"))
	n, err = store.Count(ctx, types.TagRole, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, store.Clear(ctx, types.TagRole))
	n, err = store.Count(ctx, types.TagRole, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.Count(ctx, types.TagResume, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "清空职位分块不影响简历分块")
}

func TestMemoryChunkStore(t *testing.T) {
	chunkStoreContract(t, storage.NewMemoryChunkStore())
}

func TestGormChunkStore(t *testing.T) {
	db := newTestDatabase(t)
	chunkStoreContract(t, storage.NewGormChunkStore(db.DB()))
}

func TestChunkPointID_Deterministic(t *testing.T) {
	a := storage.ChunkPointID(types.TagRole, "r1", "abc", 0)
	assert.Equal(t, a, storage.ChunkPointID(types.TagRole, "r1", "abc", 0))
	assert.NotEqual(t, a, storage.ChunkPointID(types.TagRole, "r1", "abc", 1))
	assert.NotEqual(t, a, storage.ChunkPointID(types.TagResume, "r1", "abc", 0))
	assert.Len(t, a, 36, "应为标准UUID格式")
}

func TestL2Distance(t *testing.T) {
	d, err := storage.L2Distance([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = storage.L2Distance([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, d, 1e-12)

	_, err = storage.L2Distance([]float64{1}, []float64{1, 2})
	require.ErrorIs(t, err, storage.ErrDimensionMismatch)
}
