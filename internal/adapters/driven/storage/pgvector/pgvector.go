// Package pgvector implements driven.VectorIndex on PostgreSQL with the
// pgvector extension. All namespaces share one table keyed by
// (namespace, id); similarity uses the cosine distance operator.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// Defaults for the pgvector adapter.
const (
	DefaultTable   = "docindex_vectors"
	DefaultMaxTopK = 10000
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Ensure Index implements the interfaces.
var (
	_ driven.VectorIndex      = (*Index)(nil)
	_ driven.NamespaceScanner = (*Index)(nil)
)

// Config holds pgvector adapter configuration.
type Config struct {
	// DSN is a lib/pq connection string.
	DSN string

	// Table is the vectors table name.
	Table string

	MaxTopK int
}

// Index is a pgvector-backed vector index.
type Index struct {
	db      *sql.DB
	table   string
	maxTopK int
}

// Open connects to PostgreSQL and creates the extension and table if needed.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: %w: empty DSN", domain.ErrInvalidInput)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("pgvector: %w: invalid table name %q", domain.ErrInvalidInput, cfg.Table)
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}

	idx := &Index{db: db, table: cfg.Table, maxTopK: cfg.MaxTopK}
	if err := idx.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *Index) init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			namespace   TEXT    NOT NULL,
			id          TEXT    NOT NULL,
			document_id TEXT    NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text  TEXT    NOT NULL,
			extra       JSONB   NOT NULL DEFAULT '{}',
			embedding   vector  NOT NULL,
			PRIMARY KEY (namespace, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + p.table + `_chunk_idx ON ` + p.table + ` (namespace, chunk_index)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: init schema: %w", err)
		}
	}
	return nil
}

// Upsert writes records in one transaction, replacing existing IDs.
func (p *Index) Upsert(ctx context.Context, namespace string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+p.table+` (namespace, id, document_id, chunk_index, chunk_text, extra, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (namespace, id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			chunk_text = EXCLUDED.chunk_text,
			extra = EXCLUDED.extra,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("pgvector: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		extra, err := marshalExtra(rec.Metadata.Extra)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, namespace, rec.ID, rec.Metadata.DocumentID,
			rec.Metadata.ChunkIndex, rec.Metadata.ChunkText, extra,
			pgvector.NewVector(rec.Vector)); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Query returns the topK nearest records by cosine distance.
// Score is 1 - distance, i.e. cosine similarity.
func (p *Index) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, chunk_text, extra, 1 - (embedding <=> $2) AS score
		FROM `+p.table+`
		WHERE namespace = $1
		ORDER BY embedding <=> $2, chunk_index
		LIMIT $3
	`, namespace, pgvector.NewVector(vector), min(topK, p.maxTopK))
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer rows.Close()

	var matches []domain.VectorMatch
	for rows.Next() {
		var m domain.VectorMatch
		var extra []byte
		var score sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Metadata.DocumentID, &m.Metadata.ChunkIndex,
			&m.Metadata.ChunkText, &extra, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan match: %w", err)
		}
		if err := unmarshalExtra(extra, &m.Metadata); err != nil {
			return nil, err
		}
		m.Score = score.Float64
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Fetch returns the records with the given IDs. Missing IDs are omitted.
func (p *Index) Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.EmbeddingRecord, error) {
	out := make(map[string]domain.EmbeddingRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	records, err := p.selectRecords(ctx,
		`WHERE namespace = $1 AND id = ANY($2)`, namespace, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		out[rec.ID] = rec
	}
	return out, nil
}

// Scan returns every record in a namespace ordered by chunk index.
func (p *Index) Scan(ctx context.Context, namespace string) ([]domain.EmbeddingRecord, error) {
	return p.selectRecords(ctx, `WHERE namespace = $1 ORDER BY chunk_index`, namespace)
}

// DeleteNamespace removes every record in a namespace.
func (p *Index) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("pgvector: delete namespace: %w", err)
	}
	return nil
}

// Stats counts the records in a namespace.
func (p *Index) Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+p.table+` WHERE namespace = $1`, namespace).Scan(&count)
	if err != nil {
		return domain.NamespaceStats{}, fmt.Errorf("pgvector: count: %w", err)
	}
	return domain.NamespaceStats{Exists: count > 0, Count: count}, nil
}

// MaxTopK returns the configured query size cap.
func (p *Index) MaxTopK() int {
	return p.maxTopK
}

// Close closes the database connection.
func (p *Index) Close() error {
	return p.db.Close()
}

func (p *Index) selectRecords(ctx context.Context, where string, args ...any) ([]domain.EmbeddingRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, chunk_text, extra, embedding FROM `+p.table+` `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: select: %w", err)
	}
	defer rows.Close()

	var records []domain.EmbeddingRecord
	for rows.Next() {
		var rec domain.EmbeddingRecord
		var extra []byte
		var vec pgvector.Vector
		if err := rows.Scan(&rec.ID, &rec.Metadata.DocumentID, &rec.Metadata.ChunkIndex,
			&rec.Metadata.ChunkText, &extra, &vec); err != nil {
			return nil, fmt.Errorf("pgvector: scan record: %w", err)
		}
		if err := unmarshalExtra(extra, &rec.Metadata); err != nil {
			return nil, err
		}
		rec.Vector = vec.Slice()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func marshalExtra(extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("pgvector: marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalExtra(data []byte, md *domain.RecordMetadata) error {
	var extra map[string]string
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("pgvector: unmarshal metadata: %w", err)
	}
	if len(extra) > 0 {
		md.Extra = extra
	}
	return nil
}
