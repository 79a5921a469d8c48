package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/core/chunker"
	"github.com/knowbase-io/knowbase/internal/core/embedding"
	"github.com/knowbase-io/knowbase/internal/core/language"
	"github.com/knowbase-io/knowbase/internal/models"
)

type fakeDB struct {
	docs map[string]*models.Document
}

func newFakeDB() *fakeDB {
	return &fakeDB{docs: map[string]*models.Document{}}
}

func (f *fakeDB) CreateUser(ctx context.Context, user *models.User) error { return nil }

func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

func (f *fakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := f.docs[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeDB) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDB) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = status
	return nil
}

func (f *fakeDB) UpdateDocumentCollection(ctx context.Context, id string, collection string) error {
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.CollectionID = collection
	return nil
}

func (f *fakeDB) DeleteDocument(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDB) FindDocumentByContent(ctx context.Context, userID, title, content, fileName string) (*models.Document, error) {
	for _, d := range f.docs {
		if d.UserID == userID && d.Title == title && d.Content == content && d.FileName == fileName {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) Close() error { return nil }

type fakeVS struct {
	collections map[string]models.Collection
	points      map[string][]models.VectorPoint
	deleteErr   error
}

func newFakeVS() *fakeVS {
	return &fakeVS{
		collections: map[string]models.Collection{},
		points:      map[string][]models.VectorPoint{},
	}
}

func (f *fakeVS) EnsureCollection(ctx context.Context, name, model string, dims int) (*models.Collection, error) {
	if c, ok := f.collections[name]; ok {
		return &c, nil
	}
	c := models.Collection{ID: name, Name: name, Model: model, Dimensions: dims, CreatedAt: time.Now()}
	f.collections[name] = c
	return &c, nil
}

func (f *fakeVS) ListCollections(ctx context.Context) ([]models.Collection, error) {
	var out []models.Collection
	for _, c := range f.collections {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeVS) CountPoints(ctx context.Context, collection string) (int64, error) {
	return int64(len(f.points[collection])), nil
}

func (f *fakeVS) Upsert(ctx context.Context, collection string, points []models.VectorPoint) error {
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeVS) Query(ctx context.Context, collection, userID string, vector []float32, limit int, threshold float64) ([]models.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeVS) SearchText(ctx context.Context, collection, userID, query string, limit int) ([]models.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeVS) Scroll(ctx context.Context, collection string) ([]models.VectorPoint, error) {
	return f.points[collection], nil
}

func (f *fakeVS) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var total int64
	for name, pts := range f.points {
		var kept []models.VectorPoint
		for _, p := range pts {
			if p.DocumentID == documentID {
				total++
				continue
			}
			kept = append(kept, p)
		}
		f.points[name] = kept
	}
	return total, nil
}

func (f *fakeVS) Clear(ctx context.Context, collection string) error {
	f.points[collection] = nil
	return nil
}

func (f *fakeVS) DeleteCollection(ctx context.Context, collection string) error {
	delete(f.collections, collection)
	delete(f.points, collection)
	return nil
}

type unitProvider struct {
	dims  int
	calls int
}

func (u *unitProvider) EmbedText(ctx context.Context, text string, model string) ([]float32, error) {
	vecs, err := u.EmbedTexts(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (u *unitProvider) EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	u.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, u.dims)
		vec[i%u.dims] = 1
		out[i] = vec
	}
	return out, nil
}

func newTestService(db *fakeDB, vs *fakeVS) *Service {
	provider := &unitProvider{dims: 1024}
	orch := embedding.NewOrchestrator(provider, embedding.OrchestratorConfig{
		BatchSize:  32,
		MaxTokens:  512,
		Retries:    1,
		BatchDelay: time.Millisecond,
	}, zap.NewNop())
	return NewService(
		db, vs, nil, nil,
		language.NewRouter(nil),
		chunker.New(zap.NewNop()),
		orch,
		"test-bucket",
		8,
		zap.NewNop(),
	)
}

func zhContent() string {
	base := "这是第一句。这是第二句，内容较长需要继续书写以确保超过分块阈值。"
	return strings.Repeat(base, 20) // well past one chunk window
}

func l2norm(vec []float32) float64 {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	return math.Sqrt(sq)
}

func TestIngestChineseDocument(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	res, err := s.Ingest(context.Background(), Request{
		UserID:  "u1",
		Title:   "T",
		Content: zhContent(),
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	assert.Equal(t, "zh", res.Language)
	assert.Equal(t, "my_knowledge_bge-large-zh-v1.5", res.Collection)
	assert.GreaterOrEqual(t, res.ChunkCount, 2)

	doc := db.docs[res.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusReady, doc.Status)
	assert.Equal(t, "my_knowledge_bge-large-zh-v1.5", doc.CollectionID)

	points := vs.points[res.Collection]
	require.Len(t, points, res.ChunkCount)
	for i, p := range points {
		assert.Equal(t, res.DocumentID, p.DocumentID)
		assert.Equal(t, "u1", p.UserID)
		assert.Equal(t, i, p.ChunkIndex)
		assert.NotEmpty(t, p.ChunkText)
		assert.Equal(t, "T", p.Title)
		assert.InDelta(t, 1.0, l2norm(p.Vector), 1e-6)
	}
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	content := zhContent()
	first, err := s.Ingest(context.Background(), Request{UserID: "u1", Title: "T", Content: content})
	require.NoError(t, err)

	pointsBefore := len(vs.points[first.Collection])
	second, err := s.Ingest(context.Background(), Request{UserID: "u1", Title: "T", Content: content})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Len(t, vs.points[first.Collection], pointsBefore, "duplicate must not create points")
	assert.Len(t, db.docs, 1)
}

func TestIngestSameContentDifferentUsers(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	content := zhContent()
	alice, err := s.Ingest(context.Background(), Request{UserID: "alice", Title: "T", Content: content})
	require.NoError(t, err)

	bob, err := s.Ingest(context.Background(), Request{UserID: "bob", Title: "T", Content: content})
	require.NoError(t, err)

	// identical content under another user is a new document, never a
	// reference to one the caller cannot read or delete
	assert.False(t, bob.Duplicate)
	assert.NotEqual(t, alice.DocumentID, bob.DocumentID)
	assert.Len(t, db.docs, 2)
	assert.Equal(t, "alice", db.docs[alice.DocumentID].UserID)
	assert.Equal(t, "bob", db.docs[bob.DocumentID].UserID)
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	s := newTestService(newFakeDB(), newFakeVS())
	_, err := s.Ingest(context.Background(), Request{Title: "T", Content: "   "})
	assert.Error(t, err)
	_, err = s.Ingest(context.Background(), Request{Title: " ", Content: "body"})
	assert.Error(t, err)
}

func TestIngestEnglishRoutesToEnglishCollection(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	res, err := s.Ingest(context.Background(), Request{
		UserID:  "u1",
		Title:   "English doc",
		Content: strings.Repeat("This is a long English document about retrieval systems and their design. ", 15),
	})
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, "my_knowledge_bge-large-en-v1.5", res.Collection)
}

func TestIngestEmitsProgress(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	events := make(chan Event, 256)
	_, err := s.Ingest(context.Background(), Request{
		UserID:   "u1",
		Title:    "T",
		Content:  zhContent(),
		Progress: events,
	})
	require.NoError(t, err)
	close(events)

	stages := map[Stage]bool{}
	for ev := range events {
		stages[ev.Stage] = true
	}
	assert.True(t, stages[StageChunking])
	assert.True(t, stages[StageEmbedding])
	assert.True(t, stages[StageStoring])
	assert.True(t, stages[StageDone])
}

func TestDeleteRemovesEverything(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	res, err := s.Ingest(context.Background(), Request{UserID: "u1", Title: "T", Content: zhContent()})
	require.NoError(t, err)
	require.NotEmpty(t, vs.points[res.Collection])

	removed, err := s.Delete(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, int64(res.ChunkCount), removed)
	assert.Empty(t, vs.points[res.Collection])
	assert.NotContains(t, db.docs, res.DocumentID)
}

func TestDeleteKeepsRowWhenPointDeleteFails(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	res, err := s.Ingest(context.Background(), Request{UserID: "u1", Title: "T", Content: zhContent()})
	require.NoError(t, err)

	vs.deleteErr = fmt.Errorf("collection table locked")
	_, err = s.Delete(context.Background(), res.DocumentID)
	require.Error(t, err)

	// the row survives so deletion can be retried once the store recovers
	assert.Contains(t, db.docs, res.DocumentID)

	vs.deleteErr = nil
	removed, err := s.Delete(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, int64(res.ChunkCount), removed)
	assert.NotContains(t, db.docs, res.DocumentID)
}

func TestDeleteUnknownDocument(t *testing.T) {
	s := newTestService(newFakeDB(), newFakeVS())
	_, err := s.Delete(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
}

func TestProcessOneReingestsFromContent(t *testing.T) {
	db, vs := newFakeDB(), newFakeVS()
	s := newTestService(db, vs)

	doc := &models.Document{
		ID:         "doc-raw",
		UserID:     "u1",
		Title:      "Stored",
		Content:    zhContent(),
		SourceType: "text",
		Status:     models.DocStatusPending,
	}
	require.NoError(t, db.CreateDocument(context.Background(), doc))

	require.NoError(t, s.ProcessOne(context.Background(), "doc-raw"))
	assert.Equal(t, models.DocStatusReady, db.docs["doc-raw"].Status)
	assert.Equal(t, "my_knowledge_bge-large-zh-v1.5", db.docs["doc-raw"].CollectionID)
	assert.NotEmpty(t, vs.points["my_knowledge_bge-large-zh-v1.5"])
}

func TestEnqueueFailsWhenQueueFull(t *testing.T) {
	s := newTestService(newFakeDB(), newFakeVS())
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, s.Enqueue(ctx, fmt.Sprintf("doc-%d", i)))
	}
	assert.Error(t, s.Enqueue(ctx, "one-too-many"))
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://my-bucket/docs/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "docs/file.pdf", key)

	bucket, key, err = parseS3URL("https://my-bucket.s3.us-east-2.amazonaws.com/docs/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "docs/file.pdf", key)

	for _, bad := range []string{"", "ftp://x/y", "s3://bucket-only", "https://host-no-path"} {
		_, _, err := parseS3URL(bad)
		assert.Error(t, err, "expected %q rejected", bad)
	}
}
