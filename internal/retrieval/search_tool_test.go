package retrieval

import (
	"fmt"
	"iter"
	"strings"
	"testing"

	"authz-rag/internal/models"
)

// MockSearcher yields a fixed candidate list, honoring the limit.
type MockSearcher struct {
	docs []models.Document
	err  error
}

func (m *MockSearcher) Search(folderID, query string, limit int) iter.Seq2[models.Document, error] {
	return func(yield func(models.Document, error) bool) {
		if m.err != nil {
			yield(models.Document{}, m.err)
			return
		}
		for i, doc := range m.docs {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// MockMirror records which files were lazily mirrored.
type MockMirror struct {
	mirrored []string
	err      error
}

func (m *MockMirror) EnsureMirrored(fileID string) error {
	if m.err != nil {
		return m.err
	}
	m.mirrored = append(m.mirrored, fileID)
	return nil
}

// MockFilter allows a fixed set of file ids.
type MockFilter struct {
	allowed map[string]bool
}

func (m *MockFilter) CanAccessDocument(doc *models.Document) bool {
	return m.allowed[doc.ID]
}

func (m *MockFilter) SubjectID() string {
	return "alice@example.com"
}

func newTestTool(docs []models.Document, allowed map[string]bool, mode string) (*SearchTool, *MockMirror) {
	mirror := &MockMirror{}
	tool := NewSearchTool(
		&MockSearcher{docs: docs},
		mirror,
		&MockFilter{allowed: allowed},
		"folder-1",
		mode,
		0,
	)
	return tool, mirror
}

func TestRunFiltersUnauthorizedDocuments(t *testing.T) {
	docs := []models.Document{
		{ID: "f1", Name: "PTO Policy", Source: "https://example.com/f1", Content: "PTO policy content"},
		{ID: "f2", Name: "Payroll", Source: "https://example.com/f2", Content: "Payroll content"},
	}
	tool, _ := newTestTool(docs, map[string]bool{"f1": true}, ModeSnippets)

	out, err := tool.Run("pto")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !strings.Contains(out, "PTO Policy") {
		t.Errorf("Expected output to contain the authorized document, got %q", out)
	}
	if strings.Contains(out, "Payroll") {
		t.Errorf("Expected unauthorized document to be dropped, got %q", out)
	}
}

func TestRunReturnsSentinelWhenNothingSurvives(t *testing.T) {
	docs := []models.Document{
		{ID: "f1", Name: "PTO Policy", Source: "https://example.com/f1", Content: "content"},
	}
	tool, _ := newTestTool(docs, map[string]bool{}, ModeSnippets)

	out, err := tool.Run("pto")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != NoDocumentFound {
		t.Errorf("Expected sentinel %q, got %q", NoDocumentFound, out)
	}
	if out == "" {
		t.Error("Sentinel must never be the empty string")
	}
}

func TestRunMirrorsEveryCandidate(t *testing.T) {
	docs := []models.Document{
		{ID: "f1", Name: "A", Source: "s1", Content: "c1"},
		{ID: "f2", Name: "B", Source: "s2", Content: "c2"},
	}
	// f2 is denied, but its permissions must still be mirrored before
	// the check runs.
	tool, mirror := newTestTool(docs, map[string]bool{"f1": true}, ModeSnippets)

	if _, err := tool.Run("q"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(mirror.mirrored) != 2 || mirror.mirrored[0] != "f1" || mirror.mirrored[1] != "f2" {
		t.Errorf("Expected both candidates mirrored in order, got %v", mirror.mirrored)
	}
}

func TestRunMirrorErrorPropagates(t *testing.T) {
	docs := []models.Document{{ID: "f1", Name: "A", Source: "s1", Content: "c1"}}
	mirror := &MockMirror{err: fmt.Errorf("authz service down")}
	tool := NewSearchTool(&MockSearcher{docs: docs}, mirror, &MockFilter{}, "folder-1", ModeSnippets, 0)

	if _, err := tool.Run("q"); err == nil {
		t.Error("Expected mirror error to propagate")
	}
}

func TestRunSearchErrorPropagates(t *testing.T) {
	tool := NewSearchTool(
		&MockSearcher{err: fmt.Errorf("store unavailable")},
		&MockMirror{},
		&MockFilter{},
		"folder-1",
		ModeSnippets,
		0,
	)

	if _, err := tool.Run("q"); err == nil {
		t.Error("Expected search error to propagate")
	}
}

func TestFormattingModes(t *testing.T) {
	doc := models.Document{
		ID:      "f1",
		Name:    "PTO Policy",
		Source:  "https://example.com/f1",
		Content: "Full document content here",
		Summary: "Short summary",
	}

	tests := []struct {
		mode string
		want string
	}{
		{
			// Snippet modes use the precomputed summary when present.
			mode: ModeSnippets,
			want: "Name: PTO Policy\nSource: https://example.com/f1\nSummary: Short summary",
		},
		{
			mode: ModeSnippetsMarkdown,
			want: "[PTO Policy](https://example.com/f1)<br/>\nShort summary",
		},
		{
			// Document modes derive a snippet from the content.
			mode: ModeDocuments,
			want: "Name: PTO Policy\nSource: https://example.com/f1\nSummary: Full document content here",
		},
		{
			mode: ModeDocumentsMarkdown,
			want: "[PTO Policy](https://example.com/f1)<br/>Full document content here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			tool, _ := newTestTool([]models.Document{doc}, map[string]bool{"f1": true}, tt.mode)
			out, err := tool.Run("q")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if out != tt.want {
				t.Errorf("Mode %s:\nwant %q\ngot  %q", tt.mode, tt.want, out)
			}
		})
	}
}

func TestFormattingModesPreserveOrdering(t *testing.T) {
	docs := []models.Document{
		{ID: "f1", Name: "Alpha", Source: "s1", Content: "c1"},
		{ID: "f2", Name: "Beta", Source: "s2", Content: "c2"},
		{ID: "f3", Name: "Gamma", Source: "s3", Content: "c3"},
	}
	allowed := map[string]bool{"f1": true, "f2": true, "f3": true}

	for _, mode := range []string{ModeSnippets, ModeSnippetsMarkdown, ModeDocuments, ModeDocumentsMarkdown} {
		t.Run(mode, func(t *testing.T) {
			tool, _ := newTestTool(docs, allowed, mode)
			out, err := tool.Run("q")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			snippets := strings.Split(out, "\n\n")
			if len(snippets) != 3 {
				t.Fatalf("Expected 3 snippets, got %d", len(snippets))
			}
			for i, name := range []string{"Alpha", "Beta", "Gamma"} {
				if !strings.Contains(snippets[i], name) {
					t.Errorf("Expected snippet %d to be %s, got %q", i, name, snippets[i])
				}
			}
		})
	}
}

func TestUnrecognizedModeIsError(t *testing.T) {
	docs := []models.Document{{ID: "f1", Name: "A", Source: "s1", Content: "c1"}}
	tool, _ := newTestTool(docs, map[string]bool{"f1": true}, "html")

	_, err := tool.Run("q")
	if err == nil {
		t.Fatal("Expected error for unrecognized mode")
	}
	if !strings.Contains(err.Error(), "html") {
		t.Errorf("Expected error to name the mode, got %v", err)
	}
}

func TestSnippetFromContent(t *testing.T) {
	short := "A   short\n\ndocument."
	if got := snippetFromContent(short); got != "A short document." {
		t.Errorf("Expected collapsed whitespace, got %q", got)
	}

	long := strings.Repeat("word ", 200)
	got := snippetFromContent(long)
	if len(got) > snippetMaxLen+10 {
		t.Errorf("Expected snippet near %d chars, got %d", snippetMaxLen, len(got))
	}
	if !strings.Contains(got, "[...]") {
		t.Errorf("Expected ellipsis marker in long snippet, got %q", got)
	}
}
