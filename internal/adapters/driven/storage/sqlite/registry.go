package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// registry implements driven.DocumentRegistry over the documents table.
type registry struct {
	store *Store
}

var _ driven.DocumentRegistry = (*registry)(nil)

// Save stores or replaces a document record.
func (r *registry) Save(ctx context.Context, rec domain.DocumentRecord) error {
	failed := rec.FailedBatches
	if failed == nil {
		failed = []int{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshalling failed batches: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner, chunk_count, batch_size, chunk_size, chunk_overlap, failed_batches, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			chunk_count = excluded.chunk_count,
			batch_size = excluded.batch_size,
			chunk_size = excluded.chunk_size,
			chunk_overlap = excluded.chunk_overlap,
			failed_batches = excluded.failed_batches,
			indexed_at = excluded.indexed_at
	`, rec.ID, rec.Owner, rec.ChunkCount, rec.BatchSize, rec.ChunkSize, rec.ChunkOverlap,
		string(failedJSON), rec.IndexedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a record by document ID.
func (r *registry) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, owner, chunk_count, batch_size, chunk_size, chunk_overlap, failed_batches, indexed_at
		FROM documents WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record.
func (r *registry) Delete(ctx context.Context, id string) error {
	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// List returns all records ordered by document ID.
func (r *registry) List(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, owner, chunk_count, batch_size, chunk_size, chunk_overlap, failed_batches, indexed_at
		FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	records := []domain.DocumentRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var failedJSON string
	var indexedAt time.Time

	if err := row.Scan(&rec.ID, &rec.Owner, &rec.ChunkCount, &rec.BatchSize,
		&rec.ChunkSize, &rec.ChunkOverlap, &failedJSON, &indexedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(failedJSON), &rec.FailedBatches); err != nil {
		return nil, fmt.Errorf("unmarshalling failed batches: %w", err)
	}
	if len(rec.FailedBatches) == 0 {
		rec.FailedBatches = nil
	}
	rec.IndexedAt = indexedAt
	return &rec, nil
}
