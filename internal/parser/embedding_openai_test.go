package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
	"talent-match/internal/types"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{
		APIKey:         "sk-test",
		BaseURL:        server.URL + "/v1",
		Model:          "test-embedding",
		Dimensions:     3,
		SendDimensions: true,
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_EmbedStrings(t *testing.T) {
	var got embeddingRequest
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// 故意乱序返回，客户端需要按 index 还原
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[1,0,0]}
		],"usage":{"total_tokens":7}}`))
	})

	vectors, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0, 0}, {0, 1, 0}}, vectors)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, "test-embedding", got.Model)
	assert.Equal(t, 3, got.Dimensions)
}

func TestOpenAIEmbedder_Empty(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("空输入不应发起请求")
	})
	vectors, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "限流", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limit"}}`},
		{name: "服务端错误", status: http.StatusBadGateway, body: `upstream down`},
		{name: "数量不一致", status: http.StatusOK, body: `{"data":[{"index":0,"embedding":[1,2,3]}]}`},
		{name: "200但带错误", status: http.StatusOK, body: `{"error":{"message":"input too long"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := e.EmbedStrings(context.Background(), []string{"x", "y"})
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrProvider)

			var pe *types.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}
