// Package vecmath holds the similarity helpers shared by the embedded
// vector indexes (memory and sqlite).
package vecmath

import (
	"math"
	"sort"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopK scores every record against query and returns the best topK,
// highest score first. Equal scores are ordered by chunk index.
func TopK(records []domain.EmbeddingRecord, query []float32, topK int) []domain.VectorMatch {
	if topK <= 0 || len(records) == 0 {
		return nil
	}

	matches := make([]domain.VectorMatch, len(records))
	for i, rec := range records {
		matches[i] = domain.VectorMatch{
			ID:       rec.ID,
			Score:    CosineSimilarity(query, rec.Vector),
			Metadata: rec.Metadata,
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Metadata.ChunkIndex < matches[j].Metadata.ChunkIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
