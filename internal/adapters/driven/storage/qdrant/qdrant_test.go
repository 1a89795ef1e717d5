package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// fakeQdrant implements the subset of the Qdrant REST API the adapter uses.
// Search scores by dot product, which is enough to check ordering.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]point
	apiKeys     []string
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]map[string]point)}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]
	coll, exists := f.collections[name]

	var body map[string]json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case len(parts) == 2 && r.Method == http.MethodPut:
		f.collections[name] = make(map[string]point)
		writeResult(w, true)
		return
	case !exists:
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		return
	case len(parts) == 2 && r.Method == http.MethodGet:
		writeResult(w, map[string]any{"status": "green"})
	case len(parts) == 2 && r.Method == http.MethodDelete:
		delete(f.collections, name)
		writeResult(w, true)
	case len(parts) == 3 && r.Method == http.MethodPut:
		var points []point
		_ = json.Unmarshal(body["points"], &points)
		for _, p := range points {
			coll[p.ID] = p
		}
		writeResult(w, map[string]any{"status": "completed"})
	case len(parts) == 3 && r.Method == http.MethodPost:
		var ids []string
		_ = json.Unmarshal(body["ids"], &ids)
		var out []point
		for _, id := range ids {
			if p, ok := coll[id]; ok {
				out = append(out, p)
			}
		}
		writeResult(w, out)
	case parts[3] == "search":
		var vector []float32
		var limit int
		_ = json.Unmarshal(body["vector"], &vector)
		_ = json.Unmarshal(body["limit"], &limit)
		type hit struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		}
		var hits []hit
		for _, p := range coll {
			var score float64
			for i := range vector {
				if i < len(p.Vector) {
					score += float64(vector[i] * p.Vector[i])
				}
			}
			hits = append(hits, hit{Score: score, Payload: p.Payload})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > limit {
			hits = hits[:limit]
		}
		writeResult(w, hits)
	case parts[3] == "scroll":
		var all []point
		for _, p := range coll {
			all = append(all, p)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		start := 0
		if raw, ok := body["offset"]; ok {
			_ = json.Unmarshal(raw, &start)
		}
		end := min(start+2, len(all))
		var next any
		if end < len(all) {
			next = end
		}
		writeResult(w, map[string]any{"points": all[start:end], "next_page_offset": next})
	case parts[3] == "count":
		writeResult(w, map[string]any{"count": len(coll)})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQdrant) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok
}

func (f *fakeQdrant) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.apiKeys...)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func rec(doc string, idx int, vec ...float32) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:     domain.ChunkRecordID(doc, idx),
		Vector: vec,
		Metadata: domain.RecordMetadata{
			DocumentID: doc,
			ChunkIndex: idx,
			ChunkText:  "text " + doc,
		},
	}
}

func TestIndex_UpsertQueryFetch(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := New(Config{URL: srv.URL, APIKey: "secret"})
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "doc1", []domain.EmbeddingRecord{
		rec("doc-1", 0, 1, 0),
		rec("doc-1", 1, 0, 1),
	}))
	assert.True(t, fake.has("docindex_doc1"))

	matches, err := idx.Query(ctx, "doc1", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1_chunk_1", matches[0].ID)
	assert.Equal(t, 1, matches[0].Metadata.ChunkIndex)

	got, err := idx.Fetch(ctx, "doc1", []string{"doc-1_chunk_0", "doc-1_chunk_5"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{1, 0}, got["doc-1_chunk_0"].Vector)

	for _, key := range fake.keys() {
		assert.Equal(t, "secret", key)
	}
}

func TestIndex_MissingCollection(t *testing.T) {
	_, srv := newFakeQdrant(t)
	idx := New(Config{URL: srv.URL})
	ctx := context.Background()

	stats, err := idx.Stats(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, stats.Exists)

	matches, err := idx.Query(ctx, "nothing", []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	got, err := idx.Fetch(ctx, "nothing", []string{"x"})
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, idx.DeleteNamespace(ctx, "nothing"))
}

func TestIndex_ScanPages(t *testing.T) {
	_, srv := newFakeQdrant(t)
	idx := New(Config{URL: srv.URL})
	ctx := context.Background()

	var records []domain.EmbeddingRecord
	for i := 0; i < 5; i++ {
		records = append(records, rec("d", i, 1, float32(i)))
	}
	require.NoError(t, idx.Upsert(ctx, "d", records))

	all, err := idx.Scan(ctx, "d")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	stats, err := idx.Stats(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, domain.NamespaceStats{Exists: true, Count: 5}, stats)
}

func TestIndex_DeleteNamespaceRecreates(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := New(Config{URL: srv.URL, CollectionPrefix: "t_"})
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "d", []domain.EmbeddingRecord{rec("d", 0, 1)}))
	require.NoError(t, idx.DeleteNamespace(ctx, "d"))
	assert.False(t, fake.has("t_d"))

	require.NoError(t, idx.Upsert(ctx, "d", []domain.EmbeddingRecord{rec("d", 0, 1)}))
	assert.True(t, fake.has("t_d"))
}

func TestIndex_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	idx := New(Config{URL: srv.URL})
	_, err := idx.Stats(context.Background(), "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, pointID("ns", "a_chunk_0"), pointID("ns", "a_chunk_0"))
	assert.NotEqual(t, pointID("ns", "a_chunk_0"), pointID("other", "a_chunk_0"))
}

func TestNew_Defaults(t *testing.T) {
	idx := New(Config{})
	assert.Equal(t, DefaultURL, idx.url)
	assert.Equal(t, DefaultMaxTopK, idx.MaxTopK())
	assert.NoError(t, idx.Close())
}
