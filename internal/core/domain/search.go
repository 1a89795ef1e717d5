package domain

// Default search parameters.
const (
	DefaultInitialTopK       = 25
	DefaultFinalTopK         = 7
	DefaultMinRelevanceScore = 0.1
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// InitialTopK is the candidate set size fetched before reranking.
	InitialTopK int

	// FinalTopK is the maximum number of results returned.
	FinalTopK int

	// SkipRerank forces similarity-only ranking.
	SkipRerank bool

	// MinRelevanceScore drops reranked results below this score.
	MinRelevanceScore float64

	// Identity is an optional pre-verified caller identity.
	// When set, documents owned by someone else yield no results.
	Identity string
}

// DefaultSearchOptions returns the default search configuration.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		InitialTopK:       DefaultInitialTopK,
		FinalTopK:         DefaultFinalTopK,
		MinRelevanceScore: DefaultMinRelevanceScore,
	}
}

// WithDefaults fills unset numeric fields with their defaults.
// A zero MinRelevanceScore is left as-is; use a negative value to mean "unset".
func (o SearchOptions) WithDefaults() SearchOptions {
	if o.InitialTopK <= 0 {
		o.InitialTopK = DefaultInitialTopK
	}
	if o.FinalTopK <= 0 {
		o.FinalTopK = DefaultFinalTopK
	}
	if o.MinRelevanceScore < 0 {
		o.MinRelevanceScore = DefaultMinRelevanceScore
	}
	return o
}

// SearchResult represents a single retrieved passage.
type SearchResult struct {
	// Text is the chunk content.
	Text string `json:"text" yaml:"text"`

	// Score is the cosine similarity, the fixed structural score,
	// or the rerank relevance score when WasReranked is set.
	Score float64 `json:"score" yaml:"score"`

	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int `json:"chunkIndex" yaml:"chunkIndex"`

	// WasReranked is true when the result was ordered by the reranker.
	WasReranked bool `json:"wasReranked" yaml:"wasReranked"`

	// RelevanceScore is the reranker score. Zero when not reranked.
	RelevanceScore float64 `json:"relevanceScore,omitempty" yaml:"relevanceScore,omitempty"`
}

// VectorMatch is a single hit from a vector index query.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata RecordMetadata
}

// ChapterChunk is a chunk that looks like chapter or table-of-contents content.
type ChapterChunk struct {
	Text       string
	ChunkIndex int
	Score      int
}

// RerankCandidate is a passage submitted to the reranker.
type RerankCandidate struct {
	Text       string
	ChunkIndex int
	Score      float64
}

// RerankedResult is a candidate with its reranker relevance score.
type RerankedResult struct {
	Candidate      RerankCandidate
	RelevanceScore float64
}
