package core

import (
	"context"

	"github.com/knowbase-io/knowbase/internal/models"
)

// DbClient defines all relational persistence the service needs. It
// abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	UpdateDocumentCollection(ctx context.Context, id string, collection string) error
	DeleteDocument(ctx context.Context, id string) error

	// FindDocumentByContent is the per-user duplicate guard: a row owned
	// by the same user with the same title, content and file name means
	// the document is already ingested. One user's documents never mask
	// another's.
	FindDocumentByContent(ctx context.Context, userID, title, content, fileName string) (*models.Document, error)

	Close() error
}

// VectorStore holds embedded chunks grouped into collections, one
// embedding model per collection.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name, model string, dims int) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]models.Collection, error)
	CountPoints(ctx context.Context, collection string) (int64, error)

	Upsert(ctx context.Context, collection string, points []models.VectorPoint) error

	// Query and SearchText only return points owned by userID; an empty
	// userID skips the filter (admin tooling).
	Query(ctx context.Context, collection, userID string, vector []float32, limit int, threshold float64) ([]models.ScoredPoint, error)
	SearchText(ctx context.Context, collection, userID, query string, limit int) ([]models.ScoredPoint, error)
	Scroll(ctx context.Context, collection string) ([]models.VectorPoint, error)

	// DeleteByDocument removes the document's points from every registered
	// collection and reports how many were removed. A failure in any
	// collection is returned so callers can keep the document row for a
	// later retry.
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	Clear(ctx context.Context, collection string) error
	DeleteCollection(ctx context.Context, collection string) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
