// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for indexing and search to function:
//
//   - EmbeddingService: Generates vector embeddings for chunks and queries
//   - VectorIndex: Namespaced vector storage and similarity query
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Reranker: Second-pass relevance ordering. Without it, search is similarity-only.
//   - DocumentRegistry: Ownership and resume state. Without it, ownership is not checked
//     and failed batches are only reported, not persisted.
//   - NamespaceScanner: Native "list all" on a VectorIndex. Without it, bulk reads
//     fall back to a zero-vector query.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
