package services

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// DefaultChapterScanLimit is the number of leading chunks the scanner inspects.
const DefaultChapterScanLimit = 50

// Chapter pattern weights.
const (
	chapterMatchScore       = 2
	numberedLineScore       = 1
	tableOfContentsScore    = 5
	contentsWithDigitsScore = 3
	romanPartScore          = 1
)

var (
	chapterPattern      = regexp.MustCompile(`(?i)\bchapter\s+\d+`)
	numberedLinePattern = regexp.MustCompile(`(?m)^\s*\d+\.\s+[A-Z]`)
	romanPartPattern    = regexp.MustCompile(`\bPart\s+[IVXLCDM]+\b`)
	digitPattern        = regexp.MustCompile(`\d`)
)

// ScoreChapterText scores how much text looks like a chapter list or a
// table of contents. Zero means no structural signal.
func ScoreChapterText(text string) int {
	score := 0
	score += chapterMatchScore * len(chapterPattern.FindAllStringIndex(text, -1))
	score += numberedLineScore * len(numberedLinePattern.FindAllStringIndex(text, -1))
	score += romanPartScore * len(romanPartPattern.FindAllStringIndex(text, -1))

	lower := strings.ToLower(text)
	if strings.Contains(lower, "table of contents") {
		score += tableOfContentsScore
	}
	if strings.Contains(lower, "contents") && digitPattern.MatchString(text) {
		score += contentsWithDigitsScore
	}
	return score
}

// ChapterScanner finds chunks with chapter or table-of-contents content
// among the first chunks of a document.
type ChapterScanner struct {
	vectors *VectorStore
}

// NewChapterScanner creates a scanner reading from vectors.
func NewChapterScanner(vectors *VectorStore) *ChapterScanner {
	return &ChapterScanner{vectors: vectors}
}

// FindChapterChunks fetches chunks 0..maxScan-1 of a document by ID and
// returns those with a positive chapter score, highest score first.
// Ties keep document order.
func (c *ChapterScanner) FindChapterChunks(ctx context.Context, documentID string, maxScan int) ([]domain.ChapterChunk, error) {
	if maxScan <= 0 {
		maxScan = DefaultChapterScanLimit
	}

	records, err := c.vectors.FetchFirst(ctx, documentID, maxScan)
	if err != nil {
		return nil, err
	}
	logger.Debug("Chapter scan: fetched %d of the first %d chunks", len(records), maxScan)

	var found []domain.ChapterChunk
	for i := range records {
		text := records[i].Metadata.ChunkText
		score := ScoreChapterText(text)
		if score == 0 {
			continue
		}
		found = append(found, domain.ChapterChunk{
			Text:       text,
			ChunkIndex: records[i].Metadata.ChunkIndex,
			Score:      score,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Score != found[j].Score {
			return found[i].Score > found[j].Score
		}
		return found[i].ChunkIndex < found[j].ChunkIndex
	})

	logger.Debug("Chapter scan: %d chunks matched", len(found))
	return found, nil
}
