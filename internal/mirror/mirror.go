// Package mirror copies the source store's access-control lists into
// the authorization graph as relation tuples.
package mirror

import (
	"fmt"

	"authz-rag/internal/authz"
	"authz-rag/internal/models"
)

// roleToRelation maps source store roles onto the authorization
// schema's relations. The table is exhaustive: a role missing here is
// an error, never silently defaulted.
var roleToRelation = map[string]string{
	"owner":  "owner",
	"reader": "reader",
	"writer": "editor",
}

// GrantLister lists the access-control entries on a file.
type GrantLister interface {
	ListGrants(fileID string) ([]models.Grant, error)
}

// TupleWriter inserts relation tuples into the authorization graph.
type TupleWriter interface {
	CreateTuples(tuples []authz.Tuple) error
}

// Mirror synchronizes file ACLs into the authorization graph. It keeps
// a per-session record of which files it has already mirrored so the
// lazy path runs at most once per file.
type Mirror struct {
	grants   GrantLister
	tuples   TupleWriter
	mirrored map[string]bool
}

// New creates a Mirror reading grants from grants and writing tuples
// through tuples.
func New(grants GrantLister, tuples TupleWriter) *Mirror {
	return &Mirror{
		grants:   grants,
		tuples:   tuples,
		mirrored: make(map[string]bool),
	}
}

// MirrorFolder mirrors the ACLs of every given document in one batched
// insert. An unrecognized role on any document aborts the whole batch
// before anything is written.
func (m *Mirror) MirrorFolder(docs []models.Document) error {
	var batch []authz.Tuple
	for _, doc := range docs {
		tuples, err := m.tuplesForFile(doc.ID)
		if err != nil {
			return err
		}
		batch = append(batch, tuples...)
	}

	if err := m.tuples.CreateTuples(batch); err != nil {
		return err
	}

	for _, doc := range docs {
		m.mirrored[doc.ID] = true
	}
	return nil
}

// EnsureMirrored mirrors a single file's ACL the first time it is seen
// this session. Later calls for the same file are no-ops.
func (m *Mirror) EnsureMirrored(fileID string) error {
	if m.mirrored[fileID] {
		return nil
	}

	tuples, err := m.tuplesForFile(fileID)
	if err != nil {
		return err
	}
	if err := m.tuples.CreateTuples(tuples); err != nil {
		return err
	}

	m.mirrored[fileID] = true
	return nil
}

// tuplesForFile translates a file's grant list into relation tuples.
// The full list is translated before anything is returned, so an
// unknown role yields no tuples at all for the file. Grants without a
// principal email (domain- or link-based sharing) are skipped.
func (m *Mirror) tuplesForFile(fileID string) ([]authz.Tuple, error) {
	grants, err := m.grants.ListGrants(fileID)
	if err != nil {
		return nil, err
	}

	var tuples []authz.Tuple
	for _, grant := range grants {
		if grant.EmailAddress == "" {
			continue
		}
		relation, ok := roleToRelation[grant.Role]
		if !ok {
			return nil, fmt.Errorf("unrecognized role %q on file %s", grant.Role, fileID)
		}
		tuples = append(tuples, authz.Tuple{
			Subject:  authz.Subject{Type: "user", ID: grant.EmailAddress},
			Relation: relation,
			Resource: authz.Resource{Type: "file", ID: fileID},
		})
	}
	return tuples, nil
}
