package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// MaxTopK is the largest query size the SQLite index serves.
const MaxTopK = 10000

// fetchChunkSize bounds the number of bound parameters per Fetch statement.
const fetchChunkSize = 500

const vectorColumns = "id, document_id, chunk_index, chunk_text, extra, embedding"

// vectorIndex implements driven.VectorIndex over the vectors table.
type vectorIndex struct {
	store *Store
}

var (
	_ driven.VectorIndex      = (*vectorIndex)(nil)
	_ driven.NamespaceScanner = (*vectorIndex)(nil)
)

// Upsert stores records in one transaction, replacing existing IDs.
func (v *vectorIndex) Upsert(ctx context.Context, namespace string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (namespace, id, document_id, chunk_index, chunk_text, extra, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			chunk_text = excluded.chunk_text,
			extra = excluded.extra,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		extra, err := json.Marshal(rec.Metadata.Extra)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, namespace, rec.ID, rec.Metadata.DocumentID,
			rec.Metadata.ChunkIndex, rec.Metadata.ChunkText, string(extra),
			float32SliceToBytes(rec.Vector)); err != nil {
			return fmt.Errorf("upserting %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Query scores every record in the namespace against vector.
func (v *vectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	records, err := v.Scan(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return vecmath.TopK(records, vector, min(topK, MaxTopK)), nil
}

// Fetch returns the records with the given IDs. Missing IDs are omitted.
func (v *vectorIndex) Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.EmbeddingRecord, error) {
	out := make(map[string]domain.EmbeddingRecord, len(ids))

	for start := 0; start < len(ids); start += fetchChunkSize {
		end := min(start+fetchChunkSize, len(ids))
		part := ids[start:end]

		args := make([]any, 0, len(part)+1)
		args = append(args, namespace)
		for _, id := range part {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")

		rows, err := v.store.db.QueryContext(ctx,
			"SELECT "+vectorColumns+" FROM vectors WHERE namespace = ? AND id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, fmt.Errorf("querying vectors: %w", err)
		}
		records, err := scanRecords(rows)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			out[rec.ID] = rec
		}
	}

	return out, nil
}

// Scan returns every record in a namespace ordered by chunk index.
func (v *vectorIndex) Scan(ctx context.Context, namespace string) ([]domain.EmbeddingRecord, error) {
	rows, err := v.store.db.QueryContext(ctx,
		"SELECT "+vectorColumns+" FROM vectors WHERE namespace = ? ORDER BY chunk_index", namespace)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	return scanRecords(rows)
}

// DeleteNamespace removes every record in a namespace.
func (v *vectorIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := v.store.db.ExecContext(ctx, "DELETE FROM vectors WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("deleting namespace: %w", err)
	}
	return nil
}

// Stats counts the records in a namespace.
func (v *vectorIndex) Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error) {
	var count int
	row := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors WHERE namespace = ?", namespace)
	if err := row.Scan(&count); err != nil {
		return domain.NamespaceStats{}, fmt.Errorf("counting vectors: %w", err)
	}
	return domain.NamespaceStats{Exists: count > 0, Count: count}, nil
}

// MaxTopK returns the largest query size served.
func (v *vectorIndex) MaxTopK() int {
	return MaxTopK
}

// Close is a no-op; the Store owns the connection.
func (v *vectorIndex) Close() error {
	return nil
}

// scanRecords reads and closes rows selected with vectorColumns.
func scanRecords(rows *sql.Rows) ([]domain.EmbeddingRecord, error) {
	defer rows.Close()

	var records []domain.EmbeddingRecord
	for rows.Next() {
		var rec domain.EmbeddingRecord
		var extraJSON string
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.Metadata.DocumentID, &rec.Metadata.ChunkIndex,
			&rec.Metadata.ChunkText, &extraJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		if extraJSON != "" && extraJSON != "null" {
			if err := json.Unmarshal([]byte(extraJSON), &rec.Metadata.Extra); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata: %w", err)
			}
		}
		rec.Vector = bytesToFloat32Slice(blob)
		records = append(records, rec)
	}
	return records, rows.Err()
}
