// Package qdrant implements driven.VectorIndex against a Qdrant server
// over its REST API. Each namespace is a collection named
// "<prefix><namespace>" with cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// Defaults for the Qdrant adapter.
const (
	DefaultURL              = "http://localhost:6333"
	DefaultCollectionPrefix = "docindex_"
	DefaultTimeout          = 15 * time.Second
	DefaultMaxTopK          = 10000
	scrollPageSize          = 256
)

// errCollectionMissing marks a 404 from a collection endpoint.
var errCollectionMissing = errors.New("qdrant: collection not found")

// Ensure Index implements the interfaces.
var (
	_ driven.VectorIndex      = (*Index)(nil)
	_ driven.NamespaceScanner = (*Index)(nil)
)

// Config holds Qdrant adapter configuration.
type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
	MaxTopK          int
	HTTPClient       *http.Client
}

// Index is a REST client for Qdrant.
type Index struct {
	url     string
	apiKey  string
	prefix  string
	maxTopK int
	client  *http.Client

	mu      sync.Mutex
	created map[string]bool
}

// New creates a Qdrant index client.
func New(cfg Config) *Index {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = DefaultCollectionPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Index{
		url:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		prefix:  cfg.CollectionPrefix,
		maxTopK: cfg.MaxTopK,
		client:  client,
		created: make(map[string]bool),
	}
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

type payload struct {
	RecordID   string            `json:"record_id"`
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	ChunkText  string            `json:"chunk_text"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func (p payload) metadata() domain.RecordMetadata {
	return domain.RecordMetadata{
		DocumentID: p.DocumentID,
		ChunkIndex: p.ChunkIndex,
		ChunkText:  p.ChunkText,
		Extra:      p.Extra,
	}
}

// pointID maps a record ID to a stable UUID, since Qdrant only accepts
// integers and UUIDs as point IDs.
func pointID(namespace, recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+recordID)).String()
}

// Upsert writes records, creating the collection on first use.
func (q *Index) Upsert(ctx context.Context, namespace string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, namespace, len(records[0].Vector)); err != nil {
		return err
	}

	points := make([]point, len(records))
	for i, rec := range records {
		points[i] = point{
			ID:     pointID(namespace, rec.ID),
			Vector: rec.Vector,
			Payload: payload{
				RecordID:   rec.ID,
				DocumentID: rec.Metadata.DocumentID,
				ChunkIndex: rec.Metadata.ChunkIndex,
				ChunkText:  rec.Metadata.ChunkText,
				Extra:      rec.Metadata.Extra,
			},
		}
	}

	path := q.collectionPath(namespace) + "/points?wait=true"
	if err := q.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

// Query runs a cosine similarity search in the namespace's collection.
func (q *Index) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        min(topK, q.maxTopK),
		"with_payload": true,
	}
	err := q.do(ctx, http.MethodPost, q.collectionPath(namespace)+"/points/search", body, &resp)
	if errors.Is(err, errCollectionMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	matches := make([]domain.VectorMatch, len(resp.Result))
	for i, r := range resp.Result {
		matches[i] = domain.VectorMatch{
			ID:       r.Payload.RecordID,
			Score:    r.Score,
			Metadata: r.Payload.metadata(),
		}
	}
	return matches, nil
}

// Fetch retrieves records by ID.
func (q *Index) Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.EmbeddingRecord, error) {
	out := make(map[string]domain.EmbeddingRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	var resp struct {
		Result []point `json:"result"`
	}
	body := map[string]any{
		"ids":          pointIDs,
		"with_payload": true,
		"with_vector":  true,
	}
	err := q.do(ctx, http.MethodPost, q.collectionPath(namespace)+"/points", body, &resp)
	if errors.Is(err, errCollectionMissing) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant: retrieve: %w", err)
	}

	for _, p := range resp.Result {
		out[p.Payload.RecordID] = domain.EmbeddingRecord{
			ID:       p.Payload.RecordID,
			Vector:   p.Vector,
			Metadata: p.Payload.metadata(),
		}
	}
	return out, nil
}

// Scan pages through every point in the namespace.
func (q *Index) Scan(ctx context.Context, namespace string) ([]domain.EmbeddingRecord, error) {
	var records []domain.EmbeddingRecord
	var offset any

	for {
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			body["offset"] = offset
		}

		err := q.do(ctx, http.MethodPost, q.collectionPath(namespace)+"/points/scroll", body, &resp)
		if errors.Is(err, errCollectionMissing) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll: %w", err)
		}

		for _, p := range resp.Result.Points {
			records = append(records, domain.EmbeddingRecord{
				ID:       p.Payload.RecordID,
				Vector:   p.Vector,
				Metadata: p.Payload.metadata(),
			})
		}
		if resp.Result.NextPageOffset == nil {
			return records, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

// DeleteNamespace drops the namespace's collection. A missing collection is a no-op.
func (q *Index) DeleteNamespace(ctx context.Context, namespace string) error {
	err := q.do(ctx, http.MethodDelete, q.collectionPath(namespace), nil, nil)
	q.mu.Lock()
	delete(q.created, namespace)
	q.mu.Unlock()

	if err != nil && !errors.Is(err, errCollectionMissing) {
		return fmt.Errorf("qdrant: delete collection: %w", err)
	}
	return nil
}

// Stats counts the points in the namespace's collection.
func (q *Index) Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, q.collectionPath(namespace)+"/points/count", map[string]any{"exact": true}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return domain.NamespaceStats{}, nil
	}
	if err != nil {
		return domain.NamespaceStats{}, fmt.Errorf("qdrant: count: %w", err)
	}
	return domain.NamespaceStats{Exists: resp.Result.Count > 0, Count: resp.Result.Count}, nil
}

// MaxTopK returns the configured query size cap.
func (q *Index) MaxTopK() int {
	return q.maxTopK
}

// Close releases idle connections.
func (q *Index) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *Index) collectionPath(namespace string) string {
	return "/collections/" + q.prefix + namespace
}

// ensureCollection creates the namespace's collection if it does not exist.
func (q *Index) ensureCollection(ctx context.Context, namespace string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("qdrant: %w: empty vector", domain.ErrInvalidInput)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.created[namespace] {
		return nil
	}

	err := q.do(ctx, http.MethodGet, q.collectionPath(namespace), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": "Cosine",
			},
		}
		err = q.do(ctx, http.MethodPut, q.collectionPath(namespace), body, nil)
		if err == nil {
			logger.Debug("qdrant: created collection %s%s (%d dims)", q.prefix, namespace, dimensions)
		}
	}
	if err != nil {
		return fmt.Errorf("qdrant: ensure collection: %w", err)
	}

	q.created[namespace] = true
	return nil
}

// do sends a JSON request and decodes the JSON response into out.
func (q *Index) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
