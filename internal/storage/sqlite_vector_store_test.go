package storage

import (
	"fmt"
	"os"
	"testing"

	"authz-rag/internal/models"
)

func newTestStore(t *testing.T, name string) *SQLiteVectorStore {
	t.Helper()
	dbPath := "./" + name + ".db"
	t.Cleanup(func() { _ = os.Remove(dbPath) })

	store, err := NewSQLiteVectorStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite vector store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addTestDocuments(t *testing.T, store *SQLiteVectorStore, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		doc := &models.Document{
			ID:      fmt.Sprintf("file-%02d", i),
			Name:    fmt.Sprintf("Document %d", i),
			Source:  fmt.Sprintf("https://example.com/file-%02d", i),
			Content: fmt.Sprintf("Content of document %d", i),
			Embedding: []float32{
				float32(i) / 10.0,
				float32(i) / 20.0,
				float32(i) / 30.0,
			},
		}
		if err := store.AddDocument(doc); err != nil {
			t.Fatalf("Failed to add document %d: %v", i, err)
		}
	}
}

func TestAddDocumentRequiresID(t *testing.T) {
	store := newTestStore(t, "test_requires_id")

	doc := &models.Document{Name: "No ID", Content: "content", Embedding: []float32{0.1, 0.2, 0.3}}
	if err := store.AddDocument(doc); err == nil {
		t.Error("Expected error for document without id")
	}
}

func TestAddDocumentIsRepeatable(t *testing.T) {
	store := newTestStore(t, "test_repeatable_add")

	doc := &models.Document{
		ID:        "file-01",
		Name:      "Original",
		Source:    "https://example.com/file-01",
		Content:   "original content",
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	if err := store.AddDocument(doc); err != nil {
		t.Fatalf("First add failed: %v", err)
	}

	doc.Name = "Updated"
	if err := store.AddDocument(doc); err != nil {
		t.Fatalf("Re-add failed: %v", err)
	}

	docs := store.GetAllDocuments()
	if len(docs) != 1 {
		t.Fatalf("Expected 1 document after re-ingest, got %d", len(docs))
	}
	if docs[0].Name != "Updated" {
		t.Errorf("Expected updated name, got %q", docs[0].Name)
	}
}

func TestSearchSimilarWithFilter(t *testing.T) {
	store := newTestStore(t, "test_filtered_search")
	addTestDocuments(t, store, 6)

	allowed := map[string]bool{"file-00": true, "file-01": true, "file-02": true}
	filter := func(doc *models.Document) bool {
		return allowed[doc.ID]
	}

	results, err := store.SearchSimilarWithFilter([]float32{0.05, 0.025, 0.017}, 3, filter)
	if err != nil {
		t.Fatalf("Failed to search with filter: %v", err)
	}

	if len(results) == 0 {
		t.Fatal("Expected at least one result")
	}
	for _, doc := range results {
		if !allowed[doc.ID] {
			t.Errorf("Result %s should have been filtered out", doc.ID)
		}
	}
}

func TestSearchShortPageIsNotBackfilled(t *testing.T) {
	store := newTestStore(t, "test_short_page")
	addTestDocuments(t, store, 10)

	// Nothing passes the filter: the page is short (empty), and no
	// deeper candidates are fetched to fill it.
	results, err := store.SearchSimilarWithFilter(
		[]float32{0.1, 0.05, 0.03}, 4,
		func(doc *models.Document) bool { return false },
	)
	if err != nil {
		t.Fatalf("Failed to search with filter: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestSearchNilFilterReturnsTopK(t *testing.T) {
	store := newTestStore(t, "test_nil_filter")
	addTestDocuments(t, store, 5)

	results, err := store.SearchSimilarWithFilter([]float32{0.1, 0.05, 0.03}, 3, nil)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
}

func TestGetAllDocumentsRoundTrip(t *testing.T) {
	store := newTestStore(t, "test_round_trip")

	doc := &models.Document{
		ID:        "file-01",
		Name:      "PTO Policy",
		Source:    "https://example.com/file-01",
		Content:   "Everyone gets 25 days.",
		Summary:   "PTO overview",
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	if err := store.AddDocument(doc); err != nil {
		t.Fatalf("Failed to add document: %v", err)
	}

	docs := store.GetAllDocuments()
	if len(docs) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(docs))
	}
	got := docs[0]
	if got.ID != doc.ID || got.Name != doc.Name || got.Source != doc.Source ||
		got.Content != doc.Content || got.Summary != doc.Summary {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}
