package retrieval

import (
	"fmt"
	"iter"
	"log"
	"strings"

	"authz-rag/internal/models"
	"authz-rag/internal/permissions"
)

// Formatting modes for the free-text search tool.
const (
	ModeSnippets          = "snippets"
	ModeSnippetsMarkdown  = "snippets-markdown"
	ModeDocuments         = "documents"
	ModeDocumentsMarkdown = "documents-markdown"
)

// NoDocumentFound is returned when no authorized document matches a
// query. Agent loops depend on receiving this exact text rather than
// an empty string.
const NoDocumentFound = "No document found"

const snippetMaxLen = 400

// DocumentSearcher produces a lazy sequence of candidate documents for
// a free-text query, at most limit of them.
type DocumentSearcher interface {
	Search(folderID, query string, limit int) iter.Seq2[models.Document, error]
}

// Mirrorer lazily mirrors one file's ACL into the authorization graph.
type Mirrorer interface {
	EnsureMirrored(fileID string) error
}

// SearchTool is the free-text variant: it walks the candidate
// sequence in order, mirrors each candidate's permissions on first
// sight, drops candidates the subject may not read, and formats the
// survivors into one text blob.
type SearchTool struct {
	searcher   DocumentSearcher
	mirror     Mirrorer
	filter     permissions.DocumentFilter
	folderID   string
	mode       string
	numResults int
}

func NewSearchTool(searcher DocumentSearcher, mirror Mirrorer, filter permissions.DocumentFilter, folderID, mode string, numResults int) *SearchTool {
	return &SearchTool{
		searcher:   searcher,
		mirror:     mirror,
		filter:     filter,
		folderID:   folderID,
		mode:       mode,
		numResults: numResults,
	}
}

// Run executes the query and returns the formatted snippets of all
// authorized matches, joined by blank lines, in candidate order. With
// zero authorized matches it returns NoDocumentFound. An unrecognized
// formatting mode is a configuration error.
func (t *SearchTool) Run(query string) (string, error) {
	var snippets []string

	for doc, err := range t.searcher.Search(t.folderID, query, t.numResults) {
		if err != nil {
			return "", err
		}

		// Permissions must be in the graph before the check runs.
		if err := t.mirror.EnsureMirrored(doc.ID); err != nil {
			return "", err
		}

		if !t.filter.CanAccessDocument(&doc) {
			log.Printf("User %s is not authorized to read from %s (%s).", t.filter.SubjectID(), doc.Name, doc.ID)
			continue
		}

		snippet, err := formatDocument(&doc, t.mode)
		if err != nil {
			return "", err
		}
		snippets = append(snippets, snippet)
	}

	if len(snippets) == 0 {
		return NoDocumentFound, nil
	}

	return strings.Join(snippets, "\n\n"), nil
}

func formatDocument(doc *models.Document, mode string) (string, error) {
	// The snippet modes prefer a precomputed summary when one exists;
	// the document modes always derive a snippet from the content.
	content := doc.Content
	if (mode == ModeSnippets || mode == ModeSnippetsMarkdown) && doc.Summary != "" {
		content = doc.Summary
	}

	switch mode {
	case ModeSnippets:
		return fmt.Sprintf("Name: %s\nSource: %s\nSummary: %s", doc.Name, doc.Source, content), nil
	case ModeSnippetsMarkdown:
		return fmt.Sprintf("[%s](%s)<br/>\n%s", doc.Name, doc.Source, content), nil
	case ModeDocuments:
		return fmt.Sprintf("Name: %s\nSource: %s\nSummary: %s", doc.Name, doc.Source, snippetFromContent(content)), nil
	case ModeDocumentsMarkdown:
		return fmt.Sprintf("[%s](%s)<br/>%s", doc.Name, doc.Source, snippetFromContent(content)), nil
	default:
		return "", fmt.Errorf("invalid mode %q", mode)
	}
}

// snippetFromContent collapses whitespace and, for long content, keeps
// the head and tail around an ellipsis.
func snippetFromContent(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if len(collapsed) <= snippetMaxLen {
		return collapsed
	}

	half := snippetMaxLen / 2
	return collapsed[:half] + " [...] " + collapsed[len(collapsed)-half:]
}
