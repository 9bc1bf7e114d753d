// Package retrieval answers queries with documents the session's
// subject is authorized to read. Two variants share the same filter:
// a ranked Retriever over the vector store, and a free-text SearchTool
// over the source store.
package retrieval

import (
	"authz-rag/internal/models"
	"authz-rag/internal/permissions"
	"authz-rag/internal/storage"
)

// EmbedderInterface abstracts the embeddings client for testing.
type EmbedderInterface interface {
	GetEmbedding(text string) ([]float32, error)
}

// Retriever is the structured variant: ranked similarity search with
// the permission predicate applied inside the search call. A page left
// short by the predicate is not backfilled by re-querying.
type Retriever struct {
	store    storage.VectorStore
	embedder EmbedderInterface
	filter   permissions.DocumentFilter
	topK     int
}

func NewRetriever(store storage.VectorStore, embedder EmbedderInterface, filter permissions.DocumentFilter, topK int) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		filter:   filter,
		topK:     topK,
	}
}

// Retrieve returns up to topK authorized documents ranked by
// similarity to the question.
func (r *Retriever) Retrieve(question string) ([]models.Document, error) {
	embedding, err := r.embedder.GetEmbedding(question)
	if err != nil {
		return nil, err
	}

	return r.store.SearchSimilarWithFilter(embedding, r.topK, r.filter.CanAccessDocument)
}
