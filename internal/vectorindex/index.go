package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/storage"
	"talent-match/internal/tracing"
	"talent-match/internal/types"
)

var indexTracer = otel.Tracer("talent-match/vectorindex")

const (
	defaultSearchOverfetch    = 4
	defaultRebuildConcurrency = 4
	defaultEmbedBatchSize     = 32
	lockPollInterval          = 50 * time.Millisecond
)

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Locker 跨进程的互斥锁，多个实例共享同一索引时使用
type Locker interface {
	WaitLock(ctx context.Context, key string, ttl, pollInterval time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, value string) (bool, error)
}

// RoleLister 提供重建索引所需的启用职位
type RoleLister interface {
	ListActiveRoles(ctx context.Context) ([]types.RoleRequirement, error)
}

// Index 向量索引：职位和简历文本切块、向量化后写入分块存储，并支持按标签检索
type Index struct {
	store     storage.ChunkStore
	embedder  Embedder
	splitter  *Splitter
	overfetch int

	rebuildConcurrency int
	embedBatchSize     int

	locker  Locker
	lockTTL time.Duration

	owners *keyedMutex
	// 重建持写锁，单个实体的写入和删除持读锁
	rebuildMu sync.RWMutex
	logger    zerolog.Logger
}

// Option 索引配置项
type Option func(*Index)

// WithSplitter 设置切分器
func WithSplitter(s *Splitter) Option {
	return func(i *Index) {
		if s != nil {
			i.splitter = s
		}
	}
}

// WithSearchOverfetch 检索时多取的倍数，用于按所属实体去重后仍能凑够k个结果
func WithSearchOverfetch(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.overfetch = n
		}
	}
}

// WithRebuildConcurrency 重建时同时进行的向量化批次数
func WithRebuildConcurrency(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.rebuildConcurrency = n
		}
	}
}

// WithEmbedBatchSize 重建时每批向量化的分块数
func WithEmbedBatchSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.embedBatchSize = n
		}
	}
}

// WithLocker 设置分布式锁
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(i *Index) {
		i.locker = l
		i.lockTTL = ttl
	}
}

// New 创建向量索引
func New(store storage.ChunkStore, embedder Embedder, opts ...Option) *Index {
	idx := &Index{
		store:              store,
		embedder:           embedder,
		splitter:           NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		overfetch:          defaultSearchOverfetch,
		rebuildConcurrency: defaultRebuildConcurrency,
		embedBatchSize:     defaultEmbedBatchSize,
		lockTTL:            30 * time.Second,
		owners:             newKeyedMutex(),
		logger:             logger.Component("vectorindex"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Backend 分块存储名称
func (i *Index) Backend() string {
	return i.store.Name()
}

// UpsertRole 重新索引一个职位：渲染文本、切块、向量化，然后删除旧分块再写入新分块。
// 同一职位的并发调用串行执行
func (i *Index) UpsertRole(ctx context.Context, role types.RoleRequirement) (int, error) {
	ctx, span := indexTracer.Start(ctx, "Index.UpsertRole", trace.WithAttributes(attribute.String("role.id", role.ID)))
	defer span.End()

	if strings.TrimSpace(role.ID) == "" {
		err := fmt.Errorf("%w: 职位ID不能为空", types.ErrInvalidInput)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return 0, err
	}

	i.rebuildMu.RLock()
	defer i.rebuildMu.RUnlock()

	unlock, err := i.lockOwner(ctx, types.TagRole, role.ID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	defer unlock()

	chunks, err := i.embedChunks(ctx, types.TagRole, role.ID, role.Title, i.splitter.Split(RenderRoleText(role)))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return 0, fmt.Errorf("职位 %s 向量化失败: %w", role.ID, err)
	}

	if err := i.store.DeleteByOwner(ctx, types.TagRole, role.ID); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}

	span.SetAttributes(attribute.Int("chunks.count", len(chunks)))
	span.SetStatus(codes.Ok, "")
	i.logger.Debug().Str("role_id", role.ID).Int("chunks", len(chunks)).Msg("职位已索引")
	return len(chunks), nil
}

// UpsertResume 索引一份简历全文。简历分块只增不删，相同文本重复写入不会产生重复分块
func (i *Index) UpsertResume(ctx context.Context, candidateID, resumeText string) (int, error) {
	ctx, span := indexTracer.Start(ctx, "Index.UpsertResume", trace.WithAttributes(attribute.String("candidate.id", candidateID)))
	defer span.End()

	if strings.TrimSpace(candidateID) == "" {
		return 0, fmt.Errorf("%w: 候选人ID不能为空", types.ErrInvalidInput)
	}
	pieces := i.splitter.Split(resumeText)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%w: 简历文本为空", types.ErrInvalidInput)
	}

	i.rebuildMu.RLock()
	defer i.rebuildMu.RUnlock()

	unlock, err := i.lockOwner(ctx, types.TagResume, candidateID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	defer unlock()

	chunks, err := i.embedChunks(ctx, types.TagResume, candidateID, "", pieces)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return 0, fmt.Errorf("候选人 %s 简历向量化失败: %w", candidateID, err)
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}

	span.SetStatus(codes.Ok, "")
	i.logger.Debug().Str("candidate_id", candidateID).Int("chunks", len(chunks)).Msg("简历已索引")
	return len(chunks), nil
}

// DeleteRole 删除职位的全部分块，职位停用时调用
func (i *Index) DeleteRole(ctx context.Context, roleID string) error {
	i.rebuildMu.RLock()
	defer i.rebuildMu.RUnlock()

	unlock, err := i.lockOwner(ctx, types.TagRole, roleID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := i.store.DeleteByOwner(ctx, types.TagRole, roleID); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	i.logger.Debug().Str("role_id", roleID).Msg("职位分块已删除")
	return nil
}

// Search 检索与查询文本最相近的k个实体，每个实体只保留距离最近的分块。
// 该标签下没有任何分块时直接返回空列表，不调用向量化服务
func (i *Index) Search(ctx context.Context, query string, tag types.ChunkTag, k int) ([]types.SearchHit, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: 未知的分块标签 %q", types.ErrInvalidInput, tag)
	}
	if k <= 0 {
		return []types.SearchHit{}, nil
	}

	ctx, span := indexTracer.Start(ctx, "Index.Search", trace.WithAttributes(
		attribute.String("search.tag", string(tag)),
		attribute.Int("search.k", k),
		attribute.String("search.query", tracing.SafeQuery(query)),
	))
	defer span.End()

	n, err := i.store.Count(ctx, tag, "")
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	if n == 0 {
		span.SetStatus(codes.Ok, "empty index")
		return []types.SearchHit{}, nil
	}

	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	scored, err := i.store.Search(ctx, vec, tag, k*i.overfetch)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}

	hits := dedupeByOwner(scored, k)
	span.SetAttributes(attribute.Int("search.results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// Rebuild 清空全部分块，并按当前启用的职位重新索引，返回索引的职位数。
// 重建期间单个职位和简历的写入会等待重建结束
func (i *Index) Rebuild(ctx context.Context, roles RoleLister) (int, error) {
	i.rebuildMu.Lock()
	defer i.rebuildMu.Unlock()

	ctx, span := indexTracer.Start(ctx, "Index.Rebuild")
	defer span.End()
	started := time.Now()

	if i.locker != nil {
		value, err := i.locker.WaitLock(ctx, constants.KeyIndexRebuildLock, i.lockTTL, lockPollInterval)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		defer i.releaseLock(constants.KeyIndexRebuildLock, value)
	}

	active, err := roles.ListActiveRoles(ctx)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return 0, fmt.Errorf("加载启用职位失败: %w", err)
	}

	// 先全部向量化，失败时不清空现有索引
	type pending struct {
		role  types.RoleRequirement
		texts []string
	}
	var (
		items []pending
		texts []string
	)
	for _, role := range active {
		pieces := i.splitter.Split(RenderRoleText(role))
		items = append(items, pending{role: role, texts: pieces})
		texts = append(texts, pieces...)
	}

	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.rebuildConcurrency)
	for start := 0; start < len(texts); start += i.embedBatchSize {
		start := start
		end := start + i.embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			batch, err := i.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return 0, fmt.Errorf("重建索引向量化失败: %w", err)
	}

	chunks := make([]types.EmbeddedChunk, 0, len(texts))
	offset := 0
	for _, item := range items {
		chunks = append(chunks, buildChunks(types.TagRole, item.role.ID, item.role.Title, item.texts, vectors[offset:offset+len(item.texts)])...)
		offset += len(item.texts)
	}

	for _, tag := range []types.ChunkTag{types.TagRole, types.TagResume} {
		if err := i.store.Clear(ctx, tag); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
		}
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}

	span.SetAttributes(attribute.Int("roles.count", len(active)), attribute.Int("chunks.count", len(chunks)))
	span.SetStatus(codes.Ok, "")
	i.logger.Info().
		Int("roles", len(active)).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(started)).
		Msg("向量索引重建完成")
	return len(active), nil
}

// Stats 各标签的分块数
func (i *Index) Stats(ctx context.Context) (types.IndexStats, error) {
	stats := types.IndexStats{Backend: i.store.Name()}
	var err error
	if stats.RoleChunks, err = i.store.Count(ctx, types.TagRole, ""); err != nil {
		return stats, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	if stats.ResumeChunks, err = i.store.Count(ctx, types.TagResume, ""); err != nil {
		return stats, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	return stats, nil
}

// ChunkCount 某个职位或候选人当前的分块数
func (i *Index) ChunkCount(ctx context.Context, tag types.ChunkTag, ownerID string) (int64, error) {
	n, err := i.store.Count(ctx, tag, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	return n, nil
}

func (i *Index) embedChunks(ctx context.Context, tag types.ChunkTag, ownerID, title string, pieces []string) ([]types.EmbeddedChunk, error) {
	if len(pieces) == 0 {
		return nil, nil
	}
	vectors, err := i.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("向量数量 %d 与分块数量 %d 不一致", len(vectors), len(pieces))
	}
	return buildChunks(tag, ownerID, title, pieces, vectors), nil
}

func buildChunks(tag types.ChunkTag, ownerID, title string, pieces []string, vectors [][]float64) []types.EmbeddedChunk {
	chunks := make([]types.EmbeddedChunk, 0, len(pieces))
	for idx, text := range pieces {
		chunks = append(chunks, types.EmbeddedChunk{
			ID:      storage.ChunkPointID(tag, ownerID, textDigest(text), idx),
			Tag:     tag,
			OwnerID: ownerID,
			Title:   title,
			Text:    text,
			Index:   idx,
			Vector:  vectors[idx],
		})
	}
	return chunks
}

// dedupeByOwner 输入按距离升序，每个实体保留第一个(最近的)分块，最多k个
func dedupeByOwner(scored []types.ScoredChunk, k int) []types.SearchHit {
	hits := make([]types.SearchHit, 0, k)
	seen := make(map[string]struct{}, k)
	for _, sc := range scored {
		if _, ok := seen[sc.Chunk.OwnerID]; ok {
			continue
		}
		seen[sc.Chunk.OwnerID] = struct{}{}
		hits = append(hits, types.SearchHit{
			OwnerID:  sc.Chunk.OwnerID,
			Title:    sc.Chunk.Title,
			Score:    DistanceToScore(sc.Distance),
			Distance: sc.Distance,
		})
		if len(hits) == k {
			break
		}
	}
	return hits
}

// DistanceToScore 把L2距离换算为0-100的相似度
func DistanceToScore(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d) * 100
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// lockOwner 获取进程内锁，配置了分布式锁时一并获取
func (i *Index) lockOwner(ctx context.Context, tag types.ChunkTag, ownerID string) (func(), error) {
	unlockLocal := i.owners.Lock(string(tag) + ":" + ownerID)
	if i.locker == nil {
		return unlockLocal, nil
	}

	key := fmt.Sprintf(constants.KeyIndexOwnerLock, tag, ownerID)
	value, err := i.locker.WaitLock(ctx, key, i.lockTTL, lockPollInterval)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("%w: %w", types.ErrIndexUnavailable, err)
	}
	return func() {
		i.releaseLock(key, value)
		unlockLocal()
	}, nil
}

func (i *Index) releaseLock(key, value string) {
	// 请求上下文可能已取消，释放锁使用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := i.locker.ReleaseLock(ctx, key, value); err != nil {
		i.logger.Warn().Err(err).Str("key", key).Msg("释放分布式锁失败")
	}
}
