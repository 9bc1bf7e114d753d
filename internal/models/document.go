// Package models holds the value types shared across the application.
package models

// Document is a file fetched from the source store, enriched with an
// embedding once ingested into the vector store.
type Document struct {
	// ID is the source store's file identifier. It doubles as the
	// resource id in the authorization graph.
	ID      string `json:"id"`
	Name    string `json:"name"`
	Source  string `json:"source"`
	Content string `json:"content"`
	// Summary is an optional precomputed summary from the source
	// store's metadata. Empty when the store has none.
	Summary   string    `json:"summary,omitempty"`
	Embedding []float32 `json:"-"`
}

// Grant is one access-control entry on a file as reported by the
// source store's permission API.
type Grant struct {
	EmailAddress string `json:"emailAddress"`
	Role         string `json:"role"`
}
