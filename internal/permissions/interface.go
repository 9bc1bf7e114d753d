// Package permissions decides whether the session's subject may read a
// given document, caching decisions for the life of the session.
package permissions

import "authz-rag/internal/models"

// DocumentFilter is the predicate hook accepted by the filtered
// retrieval paths.
type DocumentFilter interface {
	CanAccessDocument(doc *models.Document) bool
	SubjectID() string
}
