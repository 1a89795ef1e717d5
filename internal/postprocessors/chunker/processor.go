// Package chunker provides a recursive, structure-aware text chunker.
//
// Text is split on the first separator in a priority list that occurs in it.
// Pieces that still exceed the target size are split again on the next,
// finer separator. The resulting pieces are then merged back up to the
// target size in one pass, so chapter and paragraph boundaries survive
// whenever they fit and every chunk after the first starts with up to
// overlap characters from the end of its predecessor.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Processor splits document text into overlapping chunks.
type Processor struct {
	chunkSize  int
	overlap    int
	separators []separator
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: defaultSeparators,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.overlap = clampOverlap(p.chunkSize, p.overlap)

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Split chunks text using the processor's configured size and overlap.
func (p *Processor) Split(text string) []domain.Chunk {
	return p.Chunk(text, p.chunkSize, p.overlap)
}

// Chunk splits text into chunks of roughly targetSize characters.
func (p *Processor) Chunk(text string, targetSize, overlap int) []domain.Chunk {
	if targetSize <= 0 {
		targetSize = p.chunkSize
	}
	if overlap < 0 {
		overlap = p.overlap
	}
	overlap = clampOverlap(targetSize, overlap)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s := splitter{size: targetSize, overlap: overlap}
	texts := s.merge(s.split(text, p.separators))

	chunks := make([]domain.Chunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, domain.Chunk{Text: t, Index: len(chunks)})
	}
	return chunks
}

// clampOverlap ensures overlap stays below the chunk size.
func clampOverlap(size, overlap int) int {
	if overlap >= size {
		return size / 4
	}
	return overlap
}

// splitter holds the parameters of a single Chunk call.
type splitter struct {
	size    int
	overlap int
}

// split recursively cuts text into pieces no larger than the target size,
// descending to finer separators only for pieces that are still too large.
// Joining the pieces restores text exactly.
func (s splitter) split(text string, seps []separator) []string {
	sep, rest := pickSeparator(text, seps)

	var out []string
	for _, piece := range sep.cut(text) {
		// Single characters cannot be split further.
		if length(piece) <= s.size || len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, rest)...)
	}
	return out
}

// merge packs consecutive pieces into chunks no larger than the target size.
// When a chunk is emitted, trailing pieces totalling at most overlap
// characters are carried into the next chunk.
func (s splitter) merge(pieces []string) []string {
	var out []string
	var window []string
	total := 0

	emit := func() {
		if t := strings.TrimSpace(strings.Join(window, "")); t != "" {
			out = append(out, t)
		}
	}

	for _, piece := range pieces {
		n := length(piece)

		if total+n > s.size && len(window) > 0 {
			emit()
			// Drop leading pieces until the carried context fits the overlap
			// and leaves room for the incoming piece.
			for len(window) > 0 && (total > s.overlap || total+n > s.size) {
				total -= length(window[0])
				window = window[1:]
			}
		}

		window = append(window, piece)
		total += n
	}

	if len(window) > 0 {
		emit()
	}

	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
