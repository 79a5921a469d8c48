package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one ingested knowledge-base entry. Content holds the
// full extracted text; StorageURL points at the original upload when the
// document came in as a file.
type Document struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Title        string    `db:"title" json:"title"`
	Content      string    `db:"content" json:"content,omitempty"`
	FileName     string    `db:"file_name" json:"file_name,omitempty"`
	FileSize     int64     `db:"file_size" json:"file_size,omitempty"`
	StorageURL   string    `db:"storage_url" json:"storage_url,omitempty"`
	SourceType   string    `db:"source_type" json:"source_type"` // "text", "upload" or "url"
	CollectionID string    `db:"collection_id" json:"collection_id,omitempty"`
	Status       string    `db:"status" json:"status"` // pending | processing | ready | failed
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Collection is a registry entry for one vector table. Every collection is
// bound to a single embedding model and dimensionality.
type Collection struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Model      string    `db:"model" json:"model"`
	Dimensions int       `db:"dimensions" json:"dimensions"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// VectorPoint is one embedded chunk as stored in a collection.
type VectorPoint struct {
	ID         string    `db:"id" json:"id"`
	Vector     []float32 `db:"embedding" json:"vector,omitempty"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id,omitempty"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	ChunkText  string    `db:"chunk_text" json:"chunk_text"`
	Title      string    `db:"title" json:"title"`
	SourceType string    `db:"source_type" json:"source_type"`
	FileName   string    `db:"file_name" json:"file_name,omitempty"`
}

// ScoredPoint is a VectorPoint with the similarity score attached by a
// vector or lexical query.
type ScoredPoint struct {
	VectorPoint
	Score float64 `json:"score"`
}

// SearchResult is one fused hybrid-search hit.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Collection string  `json:"collection"`
	Score      float64 `json:"score"`
}
