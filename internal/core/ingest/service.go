package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/core/chunker"
	"github.com/knowbase-io/knowbase/internal/core/embedding"
	"github.com/knowbase-io/knowbase/internal/core/language"
	"github.com/knowbase-io/knowbase/internal/core/vectorstore"
	"github.com/knowbase-io/knowbase/internal/models"
)

// Request describes one document to ingest. Progress, when set, receives
// pipeline events; sends are non-blocking.
type Request struct {
	UserID     string
	Title      string
	Content    string
	SourceType string
	FileName   string
	FileSize   int64
	StorageURL string
	Progress   chan<- Event
}

// Result reports where a document landed. Duplicate means an identical
// document already existed and no new rows were written.
type Result struct {
	DocumentID string `json:"document_id"`
	Collection string `json:"collection"`
	Language   string `json:"language"`
	ChunkCount int    `json:"chunk_count"`
	Duplicate  bool   `json:"duplicate"`
}

// Service runs the full ingestion pipeline: duplicate guard, language
// routing, chunking, orchestrated embedding, and point storage. It also
// owns the background queue for uploaded files.
type Service struct {
	db      core.DbClient
	store   core.VectorStore
	objects core.ObjectClient
	extract core.DocumentExtractor
	router  *language.Router
	chunks  *chunker.Chunker
	orch    *embedding.Orchestrator
	bucket  string
	jobs    chan string
	log     *zap.Logger
}

func NewService(
	db core.DbClient,
	store core.VectorStore,
	objects core.ObjectClient,
	extract core.DocumentExtractor,
	router *language.Router,
	chunks *chunker.Chunker,
	orch *embedding.Orchestrator,
	bucket string,
	queueSize int,
	log *zap.Logger,
) *Service {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Service{
		db:      db,
		store:   store,
		objects: objects,
		extract: extract,
		router:  router,
		chunks:  chunks,
		orch:    orch,
		bucket:  bucket,
		jobs:    make(chan string, queueSize),
		log:     log,
	}
}

// Ingest runs the pipeline synchronously for raw text content.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("document title is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("document content is empty")
	}

	existing, err := s.db.FindDocumentByContent(ctx, req.UserID, req.Title, req.Content, req.FileName)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		s.log.Info("duplicate document, returning existing id",
			zap.String("document_id", existing.ID),
			zap.String("title", req.Title))
		return &Result{
			DocumentID: existing.ID,
			Collection: existing.CollectionID,
			Duplicate:  true,
		}, nil
	}

	lang, route := s.router.RouteText(req.Content)
	emit(req.Progress, Event{Stage: StageRouting, Total: 1, Done: 1})

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "text"
	}
	doc := &models.Document{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Title:        req.Title,
		Content:      req.Content,
		FileName:     req.FileName,
		FileSize:     req.FileSize,
		StorageURL:   req.StorageURL,
		SourceType:   sourceType,
		CollectionID: route.Collection,
		Status:       models.DocStatusProcessing,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	count, err := s.runPipeline(ctx, doc, req.Content, route, req.Progress)
	if err != nil {
		if uerr := s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusFailed); uerr != nil {
			s.log.Error("mark document failed", zap.String("document_id", doc.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("ingest document %s: %w", doc.ID, err)
	}

	if err := s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusReady); err != nil {
		return nil, fmt.Errorf("mark document ready: %w", err)
	}
	emit(req.Progress, Event{DocumentID: doc.ID, Stage: StageDone, Done: count, Total: count})

	return &Result{
		DocumentID: doc.ID,
		Collection: route.Collection,
		Language:   lang,
		ChunkCount: count,
	}, nil
}

// runPipeline chunks, embeds and stores one document's content into its
// routed collection. Returns the number of stored points.
func (s *Service) runPipeline(ctx context.Context, doc *models.Document, content string, route language.Route, progress chan<- Event) (int, error) {
	if _, err := s.store.EnsureCollection(ctx, route.Collection, route.Model, route.Dimensions); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	params := chunker.ParamsForModel(route.Model)
	pieces := s.chunks.Chunk(content, params)
	emit(progress, Event{DocumentID: doc.ID, Stage: StageChunking, Done: len(pieces), Total: len(pieces)})
	if len(pieces) == 0 {
		return 0, nil
	}

	vectors, err := s.orch.EmbedChunks(ctx, pieces, route.Model, route.Dimensions, func(done, total int) {
		emit(progress, Event{DocumentID: doc.ID, Stage: StageEmbedding, Done: done, Total: total})
	})
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	points := make([]models.VectorPoint, 0, len(pieces))
	for i, vec := range vectors {
		if vec == nil {
			s.log.Warn("chunk skipped, no embedding produced",
				zap.String("document_id", doc.ID),
				zap.Int("chunk_index", i))
			continue
		}
		points = append(points, models.VectorPoint{
			ID:         vectorstore.PointID(doc.ID, i),
			Vector:     vec,
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			ChunkIndex: i,
			ChunkText:  pieces[i],
			Title:      doc.Title,
			SourceType: doc.SourceType,
			FileName:   doc.FileName,
		})
	}

	if err := s.store.Upsert(ctx, route.Collection, points); err != nil {
		return 0, fmt.Errorf("upsert points: %w", err)
	}
	emit(progress, Event{DocumentID: doc.ID, Stage: StageStoring, Done: len(points), Total: len(points)})
	return len(points), nil
}

// Delete removes a document everywhere: vector points in every
// collection, the stored original if one exists, and the document row.
func (s *Service) Delete(ctx context.Context, documentID string) (int64, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return 0, fmt.Errorf("document not found: %s", documentID)
	}

	removed, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete points: %w", err)
	}

	if doc.StorageURL != "" && s.objects != nil {
		if bucket, key, perr := parseS3URL(doc.StorageURL); perr == nil {
			if derr := s.objects.DeleteFile(ctx, bucket, key); derr != nil {
				s.log.Warn("delete stored file failed",
					zap.String("document_id", documentID),
					zap.String("storage_url", doc.StorageURL),
					zap.Error(derr))
			}
		}
	}

	if err := s.db.DeleteDocument(ctx, documentID); err != nil {
		return removed, fmt.Errorf("delete document row: %w", err)
	}

	s.log.Info("document deleted",
		zap.String("document_id", documentID),
		zap.Int64("points_removed", removed))
	return removed, nil
}

// parseS3URL accepts s3://bucket/key and the virtual-hosted
// https://bucket.s3.region.amazonaws.com/key form.
func parseS3URL(raw string) (bucket, key string, err error) {
	if strings.HasPrefix(raw, "s3://") {
		rest := strings.TrimPrefix(raw, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("malformed s3 url: %s", raw)
		}
		return parts[0], parts[1], nil
	}
	if strings.HasPrefix(raw, "https://") {
		rest := strings.TrimPrefix(raw, "https://")
		slash := strings.Index(rest, "/")
		if slash < 0 || slash == len(rest)-1 {
			return "", "", fmt.Errorf("malformed s3 url: %s", raw)
		}
		host := rest[:slash]
		dot := strings.Index(host, ".s3.")
		if dot <= 0 {
			return "", "", fmt.Errorf("not an s3 url: %s", raw)
		}
		return host[:dot], rest[slash+1:], nil
	}
	return "", "", fmt.Errorf("unsupported storage url: %s", raw)
}
