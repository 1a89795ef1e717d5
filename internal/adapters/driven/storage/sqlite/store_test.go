package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

func testRecord(doc string, idx int, vec ...float32) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:     domain.ChunkRecordID(doc, idx),
		Vector: vec,
		Metadata: domain.RecordMetadata{
			DocumentID: doc,
			ChunkIndex: idx,
			ChunkText:  "chunk text",
		},
	}
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
}

func TestNewStore_RecordsMigrations(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	var count int
	require.NoError(t, reopened.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestFloat32Conversion(t *testing.T) {
	in := []float32{0.5, -1.25, 3e-7, 0}

	out := bytesToFloat32Slice(float32SliceToBytes(in))

	assert.Equal(t, in, out)
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

func TestVectorIndex_UpsertAndFetch(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	rec := testRecord("doc-1", 0, 1, 2, 3)
	rec.Metadata.Extra = map[string]string{"source": "upload"}
	require.NoError(t, idx.Upsert(ctx, "doc1", []domain.EmbeddingRecord{rec, testRecord("doc-1", 1, 3, 2, 1)}))

	got, err := idx.Fetch(ctx, "doc1", []string{rec.ID, "doc-1_chunk_7"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{1, 2, 3}, got[rec.ID].Vector)
	assert.Equal(t, "upload", got[rec.ID].Metadata.Extra["source"])
	assert.Equal(t, "doc-1", got[rec.ID].Metadata.DocumentID)
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	require.NoError(t, idx.Upsert(ctx, "d", []domain.EmbeddingRecord{testRecord("d", 0, 1, 0)}))
	updated := testRecord("d", 0, 0, 1)
	updated.Metadata.ChunkText = "updated"
	require.NoError(t, idx.Upsert(ctx, "d", []domain.EmbeddingRecord{updated}))

	stats, err := idx.Stats(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	got, err := idx.Fetch(ctx, "d", []string{updated.ID})
	require.NoError(t, err)
	assert.Equal(t, "updated", got[updated.ID].Metadata.ChunkText)
}

func TestVectorIndex_QueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	require.NoError(t, idx.Upsert(ctx, "d", []domain.EmbeddingRecord{
		testRecord("d", 0, 1, 0),
		testRecord("d", 1, 0.7, 0.7),
		testRecord("d", 2, 0, 1),
	}))

	matches, err := idx.Query(ctx, "d", []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 2, matches[0].Metadata.ChunkIndex)
	assert.Equal(t, 1, matches[1].Metadata.ChunkIndex)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestVectorIndex_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	require.NoError(t, idx.Upsert(ctx, "a", []domain.EmbeddingRecord{testRecord("a", 0, 1)}))
	require.NoError(t, idx.Upsert(ctx, "b", []domain.EmbeddingRecord{testRecord("b", 0, 1), testRecord("b", 1, 1)}))

	require.NoError(t, idx.DeleteNamespace(ctx, "a"))

	a, err := idx.Stats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.NamespaceStats{}, a)

	b, err := idx.Stats(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domain.NamespaceStats{Exists: true, Count: 2}, b)
}

func TestVectorIndex_FetchManyIDs(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	var records []domain.EmbeddingRecord
	var ids []string
	for i := 0; i < fetchChunkSize+20; i++ {
		rec := testRecord("d", i, 1, float32(i))
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	require.NoError(t, idx.Upsert(ctx, "d", records))

	got, err := idx.Fetch(ctx, "d", ids)
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
}

func TestRegistry_SaveGetListDelete(t *testing.T) {
	ctx := context.Background()
	reg := setupTestStore(t).Registry()

	indexedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Save(ctx, domain.DocumentRecord{
		ID: "doc-b", Owner: "bob", ChunkCount: 30, BatchSize: 10,
		FailedBatches: []int{1, 2}, IndexedAt: indexedAt,
	}))
	require.NoError(t, reg.Save(ctx, domain.DocumentRecord{ID: "doc-a", ChunkCount: 3, BatchSize: 10, IndexedAt: indexedAt}))

	got, err := reg.Get(ctx, "doc-b")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Owner)
	assert.Equal(t, []int{1, 2}, got.FailedBatches)
	assert.True(t, got.IndexedAt.Equal(indexedAt))

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "doc-a", list[0].ID)
	assert.Nil(t, list[0].FailedBatches)

	require.NoError(t, reg.Delete(ctx, "doc-b"))
	_, err = reg.Get(ctx, "doc-b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ChunkingParams(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	reg := store.Registry()

	require.NoError(t, reg.Save(ctx, domain.DocumentRecord{
		ID: "d", ChunkCount: 4, BatchSize: 2, ChunkSize: 500, ChunkOverlap: 0,
	}))
	got, err := reg.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 500, got.ChunkSize)
	assert.Equal(t, 0, got.ChunkOverlap)

	// Rows written before the columns existed fall back to the chunker defaults.
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO documents (id, chunk_count, batch_size, indexed_at)
		VALUES ('legacy', 3, 10, ?)
	`, time.Now().UTC())
	require.NoError(t, err)
	legacy, err := reg.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Zero(t, legacy.ChunkSize)
	assert.Equal(t, domain.UnsetOverlap, legacy.ChunkOverlap)
}

func TestRegistry_SaveUpdatesFailedBatches(t *testing.T) {
	ctx := context.Background()
	reg := setupTestStore(t).Registry()

	require.NoError(t, reg.Save(ctx, domain.DocumentRecord{ID: "d", ChunkCount: 5, BatchSize: 2, FailedBatches: []int{0}}))
	require.NoError(t, reg.Save(ctx, domain.DocumentRecord{ID: "d", ChunkCount: 5, BatchSize: 2}))

	got, err := reg.Get(ctx, "d")
	require.NoError(t, err)
	assert.False(t, got.NeedsResume())
}
