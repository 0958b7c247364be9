package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"
)

// 定义Qdrant的专用tracer
var qdrantTracer = otel.Tracer("talent-match/storage/qdrant")

const (
	qdrantDistanceEuclid     = "Euclid"
	defaultQdrantCollection  = "talent_chunks"
	qdrantMaxStatusBodyBytes = 512
)

// Qdrant 基于 Qdrant REST API 的分块存储。集合使用欧氏距离，返回的score即L2距离
type Qdrant struct {
	endpoint       string
	collectionName string
	apiKey         string
	vectorSize     int
	httpClient     *http.Client
	logger         zerolog.Logger
}

var _ ChunkStore = (*Qdrant)(nil)

// QdrantOption 定义Qdrant构造函数选项
type QdrantOption func(*Qdrant)

// WithHttpTimeout 设置HTTP客户端超时
func WithHttpTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant 创建Qdrant客户端，并确保集合存在
func NewQdrant(ctx context.Context, cfg *config.QdrantConfig, vectorSize int, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("qdrant配置不能为空")
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("qdrant向量维度必须大于0")
	}

	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = defaultQdrantCollection
	}

	q := &Qdrant{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		collectionName: collectionName,
		apiKey:         cfg.APIKey,
		vectorSize:     vectorSize,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.Component("qdrant"),
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(ctx); err != nil {
		return nil, fmt.Errorf("确保集合 '%s' 存在失败: %w", collectionName, err)
	}

	q.logger.Info().Str("endpoint", q.endpoint).Str("collection", collectionName).Msg("成功连接到Qdrant服务器")
	return q, nil
}

func (q *Qdrant) Name() string { return "qdrant" }

// ensureCollectionExists 确保向量集合存在，已有集合的配置不一致时只告警
func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "qdrant"),
			attribute.String("db.collection", q.collectionName),
			attribute.Int("db.vector_size", q.vectorSize),
		))
	defer span.End()

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.doRequest(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	if status == http.StatusNotFound {
		span.AddEvent("collection_not_found")
		q.logger.Info().Str("collection", q.collectionName).Msg("集合不存在，将创建新集合")
		return q.createCollection(ctx)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	vectors := info.Result.Config.Params.Vectors
	if vectors.Size != q.vectorSize || vectors.Distance != qdrantDistanceEuclid {
		q.logger.Warn().
			Int("existing_size", vectors.Size).
			Str("existing_distance", vectors.Distance).
			Int("expected_size", q.vectorSize).
			Str("expected_distance", qdrantDistanceEuclid).
			Msg("现有集合配置与当前配置不匹配")
		span.AddEvent("collection_config_mismatch")
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// createCollection 创建新的向量集合，并为过滤字段建立payload索引
func (q *Qdrant) createCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.vectorSize,
			"distance": qdrantDistanceEuclid,
		},
	}
	if _, err := q.doRequest(ctx, http.MethodPut, q.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("创建集合失败: %w", err)
	}
	for _, field := range []string{"tag", "owner_id"} {
		idx := map[string]any{"field_name": field, "field_schema": "keyword"}
		if _, err := q.doRequest(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), idx, nil); err != nil {
			return fmt.Errorf("创建payload索引 %s 失败: %w", field, err)
		}
	}
	q.logger.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).Msg("已成功创建Qdrant集合")
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (q *Qdrant) Upsert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Upsert",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("points.count", len(chunks))))
	defer span.End()

	points := make([]qdrantPoint, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != q.vectorSize {
			err := fmt.Errorf("%w: 分块 %s 维度 %d, 集合维度 %d", ErrDimensionMismatch, c.ID, len(c.Vector), q.vectorSize)
			tracing.RecordError(span, err, tracing.ErrorTypeValidation)
			return err
		}
		points = append(points, qdrantPoint{
			ID:     c.ID,
			Vector: c.Vector,
			Payload: map[string]any{
				"tag":         string(c.Tag),
				"owner_id":    c.OwnerID,
				"title":       c.Title,
				"text":        c.Text,
				"chunk_index": c.Index,
			},
		})
	}

	if _, err := q.doRequest(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入向量点失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (q *Qdrant) DeleteByOwner(ctx context.Context, tag types.ChunkTag, ownerID string) error {
	body := map[string]any{"filter": ownerFilter(tag, ownerID)}
	if _, err := q.doRequest(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("删除 %s/%s 的向量点失败: %w", tag, ownerID, err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float64, tag types.ChunkTag, limit int) ([]types.ScoredChunk, error) {
	if limit <= 0 {
		return []types.ScoredChunk{}, nil
	}
	if len(vector) != q.vectorSize {
		return nil, fmt.Errorf("%w: 查询维度 %d, 集合维度 %d", ErrDimensionMismatch, len(vector), q.vectorSize)
	}
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.Search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("search.tag", string(tag)),
			attribute.Int("search.limit", limit),
		))
	defer span.End()

	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       ownerFilter(tag, ""),
	}
	var result struct {
		Result []struct {
			ID      any     `json:"id"`
			Score   float64 `json:"score"`
			Payload struct {
				Tag        string `json:"tag"`
				OwnerID    string `json:"owner_id"`
				Title      string `json:"title"`
				Text       string `json:"text"`
				ChunkIndex int    `json:"chunk_index"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.doRequest(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, fmt.Errorf("检索向量点失败: %w", err)
	}

	hits := make([]types.ScoredChunk, 0, len(result.Result))
	for _, p := range result.Result {
		hits = append(hits, types.ScoredChunk{
			Chunk: types.EmbeddedChunk{
				ID:      fmt.Sprint(p.ID),
				Tag:     types.ChunkTag(p.Payload.Tag),
				OwnerID: p.Payload.OwnerID,
				Title:   p.Payload.Title,
				Text:    p.Payload.Text,
				Index:   p.Payload.ChunkIndex,
			},
			Distance: p.Score,
		})
	}
	sortScored(hits)
	span.SetAttributes(attribute.Int("search.results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

func (q *Qdrant) Count(ctx context.Context, tag types.ChunkTag, ownerID string) (int64, error) {
	body := map[string]any{"exact": true, "filter": ownerFilter(tag, ownerID)}
	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if _, err := q.doRequest(ctx, http.MethodPost, q.collectionPath("/points/count"), body, &result); err != nil {
		return 0, fmt.Errorf("统计向量点失败: %w", err)
	}
	return result.Result.Count, nil
}

func (q *Qdrant) Clear(ctx context.Context, tag types.ChunkTag) error {
	body := map[string]any{"filter": ownerFilter(tag, "")}
	if _, err := q.doRequest(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("清空 %s 向量点失败: %w", tag, err)
	}
	return nil
}

// ownerFilter 构造按标签和所属实体过滤的 must 条件
func ownerFilter(tag types.ChunkTag, ownerID string) map[string]any {
	must := []map[string]any{
		{"key": "tag", "match": map[string]any{"value": string(tag)}},
	}
	if ownerID != "" {
		must = append(must, map[string]any{"key": "owner_id", "match": map[string]any{"value": ownerID}})
	}
	return map[string]any{"must": must}
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + q.collectionName + suffix
}

// doRequest 发送请求并解析响应，返回HTTP状态码
func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any, result any) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return 0, err
		}
		reader = bytes.NewReader(jsonBody)
		span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	// 注入trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return 0, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("qdrant API error: status=%d, body=%s", resp.StatusCode, tracing.TruncateString(string(respBody), qdrantMaxStatusBodyBytes))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return resp.StatusCode, err
	}

	if result != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return resp.StatusCode, fmt.Errorf("解析qdrant响应失败: %w", err)
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp.StatusCode, nil
}
