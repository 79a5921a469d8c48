package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/knowbase-io/knowbase/internal/models"
)

// Enqueue schedules a stored document for background ingestion. Fails
// fast when the queue is full instead of blocking the HTTP handler.
func (s *Service) Enqueue(ctx context.Context, documentID string) error {
	select {
	case s.jobs <- documentID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("ingestion queue full")
	}
}

// Start launches the background workers. They drain the job queue until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case docID := <-s.jobs:
					if err := s.ProcessOne(ctx, docID); err != nil {
						s.log.Error("background ingestion failed",
							zap.Int("worker", worker),
							zap.String("document_id", docID),
							zap.Error(err))
					}
				}
			}
		})
	}
	go func() {
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			s.log.Error("ingestion workers stopped", zap.Error(err))
		}
	}()
}

// ProcessOne ingests a document that already has a row and a stored
// original file: fetch from object storage, extract text, then run the
// shared pipeline.
func (s *Service) ProcessOne(ctx context.Context, documentID string) error {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", documentID)
	}

	if err := s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	content := doc.Content
	if content == "" {
		if s.objects == nil || s.extract == nil {
			return s.failDocument(ctx, doc.ID, fmt.Errorf("no content and no object storage configured"))
		}
		bucket, key, err := parseS3URL(doc.StorageURL)
		if err != nil {
			return s.failDocument(ctx, doc.ID, err)
		}
		data, err := s.objects.GetFile(ctx, bucket, key)
		if err != nil {
			return s.failDocument(ctx, doc.ID, fmt.Errorf("fetch stored file: %w", err))
		}
		content, err = s.extract.ExtractText(ctx, data, contentTypeFor(doc.FileName))
		if err != nil {
			return s.failDocument(ctx, doc.ID, fmt.Errorf("extract text: %w", err))
		}
	}

	_, route := s.router.RouteText(content)
	if doc.CollectionID != route.Collection {
		if err := s.db.UpdateDocumentCollection(ctx, doc.ID, route.Collection); err != nil {
			return s.failDocument(ctx, doc.ID, fmt.Errorf("update collection: %w", err))
		}
		doc.CollectionID = route.Collection
	}

	if _, err := s.runPipeline(ctx, doc, content, route, nil); err != nil {
		return s.failDocument(ctx, doc.ID, err)
	}
	return s.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusReady)
}

func (s *Service) failDocument(ctx context.Context, id string, cause error) error {
	if err := s.db.UpdateDocumentStatus(ctx, id, models.DocStatusFailed); err != nil {
		s.log.Error("mark document failed", zap.String("document_id", id), zap.Error(err))
	}
	return cause
}

func contentTypeFor(fileName string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(fileName), ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(strings.ToLower(fileName), ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(strings.ToLower(fileName), ".html"), strings.HasSuffix(strings.ToLower(fileName), ".htm"):
		return "text/html"
	case strings.HasSuffix(strings.ToLower(fileName), ".md"):
		return "text/markdown"
	default:
		return "text/plain"
	}
}
