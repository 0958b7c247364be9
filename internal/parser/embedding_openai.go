package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"
)

var embedderTracer = otel.Tracer("talent-match/parser/embedder")

// OpenAIEmbedder 调用 OpenAI 兼容的 /embeddings 接口，实现 eino 的 embedding.Embedder
type OpenAIEmbedder struct {
	apiKey         string
	model          string
	dimensions     int
	sendDimensions bool
	endpoint       string
	httpClient     *http.Client
	logger         zerolog.Logger
}

// NewOpenAIEmbedder 创建 embedding 客户端
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url 不能为空")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model 不能为空")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(endpoint, "/embeddings") {
		endpoint += "/embeddings"
	}

	return &OpenAIEmbedder{
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		dimensions:     cfg.Dimensions,
		sendDimensions: cfg.SendDimensions,
		endpoint:       endpoint,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger.Component("embedder"),
	}, nil
}

// Dimensions 返回配置的向量维度
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model 返回默认模型名
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// EmbedStrings 批量获取向量，返回顺序与输入一致
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	model := e.model
	if options.Model != nil && *options.Model != "" {
		model = *options.Model
	}

	ctx, span := embedderTracer.Start(ctx, "Embedder.EmbedStrings",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("embedding.model", model),
			attribute.Int("embedding.batch_size", len(texts)),
		))
	defer span.End()

	reqBody := embeddingRequest{Input: texts, Model: model, EncodingFormat: "float"}
	if e.sendDimensions && e.dimensions > 0 {
		reqBody.Dimensions = e.dimensions
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, types.NewProviderError("序列化请求", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, types.NewProviderError("创建请求", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, types.NewProviderError("请求", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, types.NewProviderError("读取响应", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := tracing.TruncateString(string(body), tracing.DefaultMaxLength)
		var parsed embeddingResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
		}
		err := fmt.Errorf("%d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), detail)
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return nil, types.NewProviderError("调用", resp.StatusCode, err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewProviderError("解析响应", resp.StatusCode, err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, types.NewProviderError("调用", resp.StatusCode, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Data) != len(texts) {
		return nil, types.NewProviderError("解析响应", resp.StatusCode,
			fmt.Errorf("返回向量数量 %d 与输入数量 %d 不一致", len(parsed.Data), len(texts)))
	}

	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vectors := make([][]float64, len(parsed.Data))
	for i, entry := range parsed.Data {
		vectors[i] = entry.Embedding
	}

	span.SetAttributes(attribute.Int("embedding.total_tokens", parsed.Usage.TotalTokens))
	e.logger.Debug().
		Str("model", model).
		Int("texts", len(texts)).
		Int("dim", firstEmbeddingDim(vectors)).
		Int("total_tokens", parsed.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("embedding完成")
	return vectors, nil
}

func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 {
		return len(embeddings[0])
	}
	return 0
}
