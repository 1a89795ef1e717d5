// Package services implements the driving port interfaces.
//
// IndexService chunks documents, embeds the chunks through an
// EmbeddingBatcher and stores them in a VectorStore, one namespace per
// document. SearchService classifies queries, retrieves candidates and
// reranks them, or answers structural questions from a ChapterScanner.
// Services only talk to infrastructure through driven ports.
package services
