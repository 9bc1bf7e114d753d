// Package storage provides vector storage for document embeddings.
package storage

import "authz-rag/internal/models"

// VectorStore stores documents with embeddings and serves similarity
// search with an in-search predicate hook.
type VectorStore interface {
	AddDocument(doc *models.Document) error
	// SearchSimilarWithFilter returns up to topK documents nearest to
	// embedding that pass the filter. The filter is applied inside the
	// search call, in distance order; a page left short by the filter
	// is returned as-is, with no re-query to backfill it.
	SearchSimilarWithFilter(embedding []float32, topK int, filter func(*models.Document) bool) ([]models.Document, error)
	GetAllDocuments() []models.Document
}
