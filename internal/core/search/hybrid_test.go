package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/models"
)

type fakeStore struct {
	cols       []models.Collection
	vectorHits map[string][]models.ScoredPoint
	textHits   map[string][]models.ScoredPoint
	broken     map[string]bool
	perLimits  []int
	userIDs    []string
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name, model string, dims int) (*models.Collection, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]models.Collection, error) {
	return f.cols, nil
}

func (f *fakeStore) CountPoints(ctx context.Context, collection string) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, points []models.VectorPoint) error {
	return errors.New("not implemented")
}

func (f *fakeStore) Query(ctx context.Context, collection, userID string, vector []float32, limit int, threshold float64) ([]models.ScoredPoint, error) {
	f.perLimits = append(f.perLimits, limit)
	f.userIDs = append(f.userIDs, userID)
	if f.broken[collection] {
		return nil, errors.New("collection gone")
	}
	return f.vectorHits[collection], nil
}

func (f *fakeStore) SearchText(ctx context.Context, collection, userID, query string, limit int) ([]models.ScoredPoint, error) {
	f.userIDs = append(f.userIDs, userID)
	if f.broken[collection] {
		return nil, errors.New("collection gone")
	}
	return f.textHits[collection], nil
}

func (f *fakeStore) Scroll(ctx context.Context, collection string) ([]models.VectorPoint, error) {
	return nil, nil
}

func (f *fakeStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Clear(ctx context.Context, collection string) error { return nil }

func (f *fakeStore) DeleteCollection(ctx context.Context, collection string) error { return nil }

type fakeEmbedder struct {
	failModels map[string]bool
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string, model string) ([]float32, error) {
	if f.failModels[model] {
		return nil, errors.New("provider down")
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.EmbedText(ctx, texts[i], model)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func point(id, text string) models.ScoredPoint {
	return models.ScoredPoint{
		VectorPoint: models.VectorPoint{ID: id, DocumentID: "doc-1", ChunkText: text, Title: "T"},
	}
}

func scored(id, text string, score float64) models.ScoredPoint {
	p := point(id, text)
	p.Score = score
	return p
}

func zhCollection() models.Collection {
	return models.Collection{Name: "my_knowledge_bge-large-zh-v1.5", Model: "BAAI/bge-large-zh-v1.5", Dimensions: 1024}
}

func enCollection() models.Collection {
	return models.Collection{Name: "my_knowledge_bge-large-en-v1.5", Model: "BAAI/bge-large-en-v1.5", Dimensions: 1024}
}

func TestSearchFusesVectorAndLexical(t *testing.T) {
	col := zhCollection()
	store := &fakeStore{
		cols:       []models.Collection{col},
		vectorHits: map[string][]models.ScoredPoint{col.Name: {scored("c1", "这是第二句", 0.8)}},
		textHits:   map[string][]models.ScoredPoint{col.Name: {scored("c1", "这是第二句", 1.0)}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "第二句", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 0.7*0.8+0.3, results[0].Score, 1e-9)
}

func TestSearchVectorOnlyAndTextOnlyScores(t *testing.T) {
	col := zhCollection()
	store := &fakeStore{
		cols:       []models.Collection{col},
		vectorHits: map[string][]models.ScoredPoint{col.Name: {scored("vec-only", "semantic match text", 0.9)}},
		textHits:   map[string][]models.ScoredPoint{col.Name: {scored("text-only", "exact keyword text", 1.0)}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "keyword", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]float64{}
	for _, r := range results {
		byID[r.ChunkID] = r.Score
	}
	assert.InDelta(t, 0.7*0.9, byID["vec-only"], 1e-9)
	assert.InDelta(t, 0.3, byID["text-only"], 1e-9)
	// sorted descending
	assert.Equal(t, "vec-only", results[0].ChunkID)
}

func TestSearchLexicalRescuesBelowThresholdChunk(t *testing.T) {
	// vector search returned nothing for this chunk (below threshold), but
	// the lexical side still surfaces it
	col := zhCollection()
	store := &fakeStore{
		cols:     []models.Collection{col},
		textHits: map[string][]models.ScoredPoint{col.Name: {scored("c2", "这是第二句，内容较长", 1.0)}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "第二句", Options{Limit: 10, Threshold: 0.01})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSearchFanOutSplitsLimit(t *testing.T) {
	store := &fakeStore{cols: []models.Collection{zhCollection(), enCollection()}}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	_, err := e.Search(context.Background(), "query", Options{Limit: 5})
	require.NoError(t, err)
	// ceil(5/2) = 3 per collection
	require.Len(t, store.perLimits, 2)
	assert.Equal(t, []int{3, 3}, store.perLimits)
}

func TestSearchPinnedCollection(t *testing.T) {
	zh, en := zhCollection(), enCollection()
	store := &fakeStore{
		cols:       []models.Collection{zh, en},
		vectorHits: map[string][]models.ScoredPoint{en.Name: {scored("e1", "english hit", 0.5)}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "query", Options{Collection: en.Name, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].ChunkID)
	require.Len(t, store.perLimits, 1, "only the pinned collection is queried")
}

func TestSearchUnknownPinnedCollection(t *testing.T) {
	store := &fakeStore{cols: []models.Collection{zhCollection()}}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())
	_, err := e.Search(context.Background(), "query", Options{Collection: "nope", Limit: 10})
	assert.Error(t, err)
}

func TestSearchSingleCollectionFailureSwallowed(t *testing.T) {
	zh, en := zhCollection(), enCollection()
	store := &fakeStore{
		cols:       []models.Collection{zh, en},
		broken:     map[string]bool{zh.Name: true},
		vectorHits: map[string][]models.ScoredPoint{en.Name: {scored("e1", "still works", 0.6)}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "query", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].ChunkID)
}

func TestSearchAllCollectionsFailed(t *testing.T) {
	zh, en := zhCollection(), enCollection()
	store := &fakeStore{
		cols:   []models.Collection{zh, en},
		broken: map[string]bool{zh.Name: true, en.Name: true},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	_, err := e.Search(context.Background(), "query", Options{Limit: 10})
	assert.ErrorIs(t, err, ErrAllCollectionsFailed)
}

func TestSearchEmbeddingFailureCountsAsCollectionFailure(t *testing.T) {
	col := zhCollection()
	store := &fakeStore{cols: []models.Collection{col}}
	e := NewEngine(store, &fakeEmbedder{failModels: map[string]bool{col.Model: true}}, zap.NewNop())

	_, err := e.Search(context.Background(), "query", Options{Limit: 10})
	assert.ErrorIs(t, err, ErrAllCollectionsFailed)
}

func TestSearchDedupesByNormalizedPrefix(t *testing.T) {
	// same content double-indexed under two ids: the higher score wins
	col := zhCollection()
	store := &fakeStore{
		cols: []models.Collection{col},
		vectorHits: map[string][]models.ScoredPoint{col.Name: {
			scored("dup-a", "Shared   Content here", 0.9),
			scored("dup-b", "shared content HERE", 0.4),
		}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "shared", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dup-a", results[0].ChunkID)
	assert.InDelta(t, 0.7*0.9, results[0].Score, 1e-9)
}

func TestSearchSortedAndTruncated(t *testing.T) {
	col := zhCollection()
	store := &fakeStore{
		cols: []models.Collection{col},
		vectorHits: map[string][]models.ScoredPoint{col.Name: {
			scored("a", "text a", 0.2),
			scored("b", "text b", 0.9),
			scored("c", "text c", 0.5),
			scored("d", "text d", 0.7),
		}},
	}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	results, err := e.Search(context.Background(), "text", Options{Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.ChunkID], "duplicate chunk id in results")
		seen[r.ChunkID] = true
	}
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestSearchScopesEveryStoreCallToUser(t *testing.T) {
	store := &fakeStore{cols: []models.Collection{zhCollection(), enCollection()}}
	e := NewEngine(store, &fakeEmbedder{}, zap.NewNop())

	_, err := e.Search(context.Background(), "query", Options{UserID: "u-42", Limit: 10})
	require.NoError(t, err)

	// both the vector and the lexical side of every collection carry the
	// caller's id; no call may go out unscoped
	require.Len(t, store.userIDs, 4)
	for _, id := range store.userIDs {
		assert.Equal(t, "u-42", id)
	}
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	e := NewEngine(&fakeStore{}, &fakeEmbedder{}, zap.NewNop())
	_, err := e.Search(context.Background(), "   ", Options{Limit: 10})
	assert.Error(t, err)
}
