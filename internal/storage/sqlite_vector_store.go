package storage

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"authz-rag/internal/models"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVectorStore implements a SQLite-based vector storage system using sqlite-vec
type SQLiteVectorStore struct {
	db              *sql.DB
	embeddingLength int
}

// NewSQLiteVectorStore creates a new SQLite-based vector store with sqlite-vec support
func NewSQLiteVectorStore(dsn string) (*SQLiteVectorStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteVectorStore{
		db:              db,
		embeddingLength: 1536, // Default for text-embedding-3-small, set for real on first insert
	}

	if err := store.initDB(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initDB creates the metadata table. vec_documents is created on first
// insert, once the embedding dimension is known.
func (s *SQLiteVectorStore) initDB() error {
	metadataQuery := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT ''
	);
	`

	if _, err := s.db.Exec(metadataQuery); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// serializeFloat32Vector converts a float32 slice to the byte format expected by sqlite-vec
func serializeFloat32Vector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return buf
}

// AddDocument stores a document with its embedding. The document id is
// the source store's file id and must be set by the caller.
func (s *SQLiteVectorStore) AddDocument(doc *models.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no id")
	}

	if err := s.ensureVecTableExists(len(doc.Embedding)); err != nil {
		return fmt.Errorf("failed to ensure vec table exists: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Upsert so that re-ingesting a folder is repeatable.
	metadataQuery := `
		INSERT INTO documents (id, name, source, content, summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			content = excluded.content,
			summary = excluded.summary
	`
	if _, err := tx.Exec(metadataQuery, doc.ID, doc.Name, doc.Source, doc.Content, doc.Summary); err != nil {
		return fmt.Errorf("failed to upsert document metadata: %w", err)
	}

	// vec0 has no UPDATE, so replace by delete and insert.
	if _, err := tx.Exec(`DELETE FROM vec_documents WHERE id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to delete old vector: %w", err)
	}

	embeddingBytes := serializeFloat32Vector(doc.Embedding)
	vecQuery := `INSERT INTO vec_documents (id, embedding) VALUES (?, ?)`
	if _, err := tx.Exec(vecQuery, doc.ID, embeddingBytes); err != nil {
		return fmt.Errorf("failed to insert document vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ensureVecTableExists creates the vec_documents table if it doesn't exist
func (s *SQLiteVectorStore) ensureVecTableExists(embeddingLen int) error {
	if s.embeddingLength != embeddingLen && s.embeddingLength != 1536 {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count); err == nil && count > 0 {
			return fmt.Errorf("cannot change embedding length from %d to %d with existing documents", s.embeddingLength, embeddingLen)
		}
	}

	var tableExists int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='vec_documents'").Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check vec_documents existence: %w", err)
	}

	if tableExists == 0 {
		s.embeddingLength = embeddingLen
		vecQuery := fmt.Sprintf(`
			CREATE VIRTUAL TABLE vec_documents USING vec0(
				id TEXT PRIMARY KEY,
				embedding FLOAT[%d]
			)
		`, s.embeddingLength)

		if _, err := s.db.Exec(vecQuery); err != nil {
			return fmt.Errorf("failed to create vec_documents table: %w", err)
		}
	}

	return nil
}

// SearchSimilarWithFilter performs a KNN search and applies the filter
// to candidates in distance order, inside the search call. At most
// topK candidates are fetched; if the filter rejects some, the page
// comes back short. There is no re-query to backfill it.
func (s *SQLiteVectorStore) SearchSimilarWithFilter(embedding []float32, topK int, filter func(*models.Document) bool) ([]models.Document, error) {
	embeddingBytes := serializeFloat32Vector(embedding)

	// sqlite-vec requires the k parameter as part of the MATCH expression.
	query := `
		SELECT
			d.id,
			d.name,
			d.source,
			d.content,
			d.summary,
			v.distance
		FROM vec_documents v
		JOIN documents d ON d.id = v.id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`

	rows, err := s.db.Query(query, embeddingBytes, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []models.Document
	for rows.Next() {
		var doc models.Document
		var distance float32

		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Source, &doc.Content, &doc.Summary, &distance); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		if filter != nil && !filter(&doc) {
			continue
		}
		results = append(results, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// GetAllDocuments returns all documents in the store (without embeddings for efficiency)
func (s *SQLiteVectorStore) GetAllDocuments() []models.Document {
	query := `SELECT id, name, source, content, summary FROM documents ORDER BY id`
	rows, err := s.db.Query(query)
	if err != nil {
		log.Printf("Error querying all documents: %v", err)
		return []models.Document{}
	}
	defer func() { _ = rows.Close() }()

	var documents []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Source, &doc.Content, &doc.Summary); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		documents = append(documents, doc)
	}

	return documents
}
