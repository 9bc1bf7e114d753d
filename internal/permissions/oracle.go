package permissions

import (
	"authz-rag/internal/authz"
	"authz-rag/internal/models"
)

// Checker is the narrow slice of the authorization client the oracle
// needs. Check must be fail-closed: false on any error or ambiguity.
type Checker interface {
	Check(subject authz.Subject, action string, resource authz.Resource) bool
}

// Oracle answers read-permission questions for one subject. Decisions
// are memoized per file id for the lifetime of the oracle; there is no
// TTL and no invalidation, so a revocation made mid-session is not
// seen until a new oracle is created.
type Oracle struct {
	checker   Checker
	subject   authz.Subject
	decisions map[string]bool
}

// NewOracle binds a subject to the given checker for one session.
func NewOracle(checker Checker, subject authz.Subject) *Oracle {
	return &Oracle{
		checker:   checker,
		subject:   subject,
		decisions: make(map[string]bool),
	}
}

// IsAllowed reports whether the bound subject may read the file. The
// first call per file id goes to the authorization service; later
// calls are served from the decision cache.
func (o *Oracle) IsAllowed(fileID string) bool {
	if allowed, ok := o.decisions[fileID]; ok {
		return allowed
	}

	allowed := o.checker.Check(o.subject, "read", authz.Resource{Type: "file", ID: fileID})
	o.decisions[fileID] = allowed
	return allowed
}

// CanAccessDocument implements DocumentFilter.
func (o *Oracle) CanAccessDocument(doc *models.Document) bool {
	return o.IsAllowed(doc.ID)
}

// SubjectID implements DocumentFilter.
func (o *Oracle) SubjectID() string {
	return o.subject.ID
}
