package services

import (
	"regexp"
	"strings"
)

// structuralKeywords are phrases that mark a query as being about a
// document's organisation rather than its content. Each matches as whole
// words in the lower-cased query, with an optional plural "s".
var structuralKeywords = []string{
	"chapter",
	"section",
	"table of contents",
	"contents page",
	"outline",
	"structure",
	"topics",
	"what is covered",
	"what's covered",
	"what does this cover",
	"what does it cover",
	"list all",
	"full access",
	"entire document",
	"whole document",
	"entire book",
	"whole book",
	"overview of the document",
	"summarize the document",
	"summarise the document",
	"syllabus",
}

var structuralPattern = compileKeywords(structuralKeywords)

// compileKeywords builds one word-bounded alternation over keywords.
// Spaces inside a keyword match any run of whitespace.
func compileKeywords(keywords []string) *regexp.Regexp {
	alts := make([]string, len(keywords))
	for i, kw := range keywords {
		words := strings.Fields(kw)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `\s+`)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)s?\b`)
}

// enhancementTerms are appended to structural queries before the
// similarity search that accompanies a chapter scan.
const enhancementTerms = "table of contents chapters sections outline"

// IsStructural reports whether query asks about document structure:
// chapters, sections, contents, or the full scope of the document.
// It performs no I/O and is deterministic.
func IsStructural(query string) bool {
	return structuralPattern.MatchString(strings.ToLower(query))
}

// StructuralKeywords returns a copy of the keyword list.
func StructuralKeywords() []string {
	out := make([]string, len(structuralKeywords))
	copy(out, structuralKeywords)
	return out
}

// enhanceStructuralQuery appends structural terms to a query so the
// accompanying similarity search leans towards contents pages.
func enhanceStructuralQuery(query string) string {
	return strings.TrimSpace(query) + " " + enhancementTerms
}
