package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
	"talent-match/internal/storage"
	"talent-match/internal/types"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeQdrant 记录收到的请求，按 "METHOD path" 返回预置响应
type fakeQdrant struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]string
	statuses  map[string]int
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{responses: map[string]string{}, statuses: map[string]int{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Body: body})
		status, hasStatus := f.statuses[key]
		resp, hasResp := f.responses[key]
		f.mu.Unlock()

		if !hasStatus {
			status = http.StatusOK
		}
		if !hasResp {
			resp = `{"result": {}, "status": "ok"}`
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeQdrant) find(method, pathPrefix string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Method == method && len(r.Path) >= len(pathPrefix) && r.Path[:len(pathPrefix)] == pathPrefix {
			out = append(out, r)
		}
	}
	return out
}

const existingCollection = `{"result": {"config": {"params": {"vectors": {"size": 3, "distance": "Euclid"}}}}}`

func newTestQdrant(t *testing.T, f *fakeQdrant, server *httptest.Server) *storage.Qdrant {
	t.Helper()
	f.responses["GET /collections/chunks"] = existingCollection
	q, err := storage.NewQdrant(context.Background(), &config.QdrantConfig{
		Endpoint:   server.URL,
		Collection: "chunks",
	}, 3)
	require.NoError(t, err, "应该成功创建Qdrant客户端")
	return q
}

// TestQdrant_CreatesMissingCollection 集合不存在时以欧氏距离创建
func TestQdrant_CreatesMissingCollection(t *testing.T) {
	f, server := newFakeQdrant(t)
	f.statuses["GET /collections/chunks"] = http.StatusNotFound
	f.responses["GET /collections/chunks"] = `{"status": {"error": "Not found"}}`

	_, err := storage.NewQdrant(context.Background(), &config.QdrantConfig{
		Endpoint:   server.URL + "/",
		Collection: "chunks",
		APIKey:     "secret",
	}, 3)
	require.NoError(t, err)

	creates := f.find(http.MethodPut, "/collections/chunks")
	require.NotEmpty(t, creates, "应发送创建集合请求")
	vectors := creates[0].Body["vectors"].(map[string]any)
	assert.Equal(t, "Euclid", vectors["distance"])
	assert.EqualValues(t, 3, vectors["size"])

	indexes := f.find(http.MethodPut, "/collections/chunks/index")
	assert.Len(t, indexes, 2, "tag 和 owner_id 各建一个payload索引")
}

// TestQdrant_NewQdrant_Validation 缺少地址或维度时报错
func TestQdrant_NewQdrant_Validation(t *testing.T) {
	_, err := storage.NewQdrant(context.Background(), &config.QdrantConfig{}, 3)
	require.Error(t, err)

	_, err = storage.NewQdrant(context.Background(), &config.QdrantConfig{Endpoint: "http://localhost:6333"}, 0)
	require.Error(t, err)
}

// TestQdrant_UpsertAndSearch 写入时携带payload，检索时带标签过滤并按距离升序
func TestQdrant_UpsertAndSearch(t *testing.T) {
	f, server := newFakeQdrant(t)
	q := newTestQdrant(t, f, server)
	ctx := context.Background()

	chunk := types.EmbeddedChunk{
		ID:      storage.ChunkPointID(types.TagRole, "role-1", "abc", 0),
		Tag:     types.TagRole,
		OwnerID: "role-1",
		Title:   "Backend Engineer",
		Text:    "Go and Postgres",
		Index:   0,
		Vector:  []float64{0.1, 0.2, 0.3},
	}
	require.NoError(t, q.Upsert(ctx, []types.EmbeddedChunk{chunk}))

	puts := f.find(http.MethodPut, "/collections/chunks/points")
	require.Len(t, puts, 1)
	points := puts[0].Body["points"].([]any)
	require.Len(t, points, 1)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "role", payload["tag"])
	assert.Equal(t, "role-1", payload["owner_id"])
	assert.Equal(t, "Backend Engineer", payload["title"])

	f.responses["POST /collections/chunks/points/search"] = `{"result": [
		{"id": "b", "score": 1.5, "payload": {"tag": "role", "owner_id": "role-2", "text": "x", "chunk_index": 1}},
		{"id": "a", "score": 0.5, "payload": {"tag": "role", "owner_id": "role-1", "title": "Backend Engineer", "text": "y", "chunk_index": 0}}
	]}`
	hits, err := q.Search(ctx, []float64{0, 0, 0}, types.TagRole, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "role-1", hits[0].Chunk.OwnerID, "距离小的排在前面")
	assert.InDelta(t, 0.5, hits[0].Distance, 1e-9)
	assert.Equal(t, "Backend Engineer", hits[0].Chunk.Title)

	searches := f.find(http.MethodPost, "/collections/chunks/points/search")
	require.Len(t, searches, 1)
	filter, err := json.Marshal(searches[0].Body["filter"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"must": [{"key": "tag", "match": {"value": "role"}}]}`, string(filter))
}

// TestQdrant_DimensionMismatch 维度不一致的向量不会发往服务端
func TestQdrant_DimensionMismatch(t *testing.T) {
	f, server := newFakeQdrant(t)
	q := newTestQdrant(t, f, server)

	err := q.Upsert(context.Background(), []types.EmbeddedChunk{{ID: "x", Tag: types.TagRole, Vector: []float64{1}}})
	require.ErrorIs(t, err, storage.ErrDimensionMismatch)

	_, err = q.Search(context.Background(), []float64{1, 2}, types.TagRole, 3)
	require.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.Empty(t, f.find(http.MethodPut, "/collections/chunks/points"))
}

// TestQdrant_CountAndDelete 统计和删除都按标签和所属实体过滤
func TestQdrant_CountAndDelete(t *testing.T) {
	f, server := newFakeQdrant(t)
	q := newTestQdrant(t, f, server)
	ctx := context.Background()

	f.responses["POST /collections/chunks/points/count"] = `{"result": {"count": 7}}`
	n, err := q.Count(ctx, types.TagResume, "cand-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	require.NoError(t, q.DeleteByOwner(ctx, types.TagResume, "cand-1"))
	deletes := f.find(http.MethodPost, "/collections/chunks/points/delete")
	require.Len(t, deletes, 1)
	assert.Equal(t, "/collections/chunks/points/delete?wait=true", deletes[0].Path)
	filter, err := json.Marshal(deletes[0].Body["filter"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"must": [
		{"key": "tag", "match": {"value": "resume"}},
		{"key": "owner_id", "match": {"value": "cand-1"}}
	]}`, string(filter))
}

// TestQdrant_ServerError 服务端错误透传为error
func TestQdrant_ServerError(t *testing.T) {
	f, server := newFakeQdrant(t)
	q := newTestQdrant(t, f, server)

	f.statuses["POST /collections/chunks/points/count"] = http.StatusInternalServerError
	_, err := q.Count(context.Background(), types.TagRole, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}
