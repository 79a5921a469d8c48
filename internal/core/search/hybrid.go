package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/models"
)

// ErrAllCollectionsFailed means no collection could serve the query at
// all; partial failures are swallowed per collection.
var ErrAllCollectionsFailed = errors.New("all collections failed")

const (
	defaultVectorWeight = 0.7
	defaultTextWeight   = 0.3
	prefixKeyRunes      = 64
)

// Options scope one search call. An empty Collection fans the query out
// to every registered collection. UserID restricts results to that
// user's points; leave it empty only for admin tooling.
type Options struct {
	Collection string
	UserID     string
	Limit      int
	Threshold  float64
}

// Engine fuses vector similarity with lexical substring matching. Vector
// hits contribute weight*score, lexical hits a fixed weight*1.0; an item
// found by both sides gets the sum.
type Engine struct {
	store        core.VectorStore
	provider     core.EmbeddingProvider
	vectorWeight float64
	textWeight   float64
	log          *zap.Logger
}

func NewEngine(store core.VectorStore, provider core.EmbeddingProvider, log *zap.Logger) *Engine {
	return &Engine{
		store:        store,
		provider:     provider,
		vectorWeight: defaultVectorWeight,
		textWeight:   defaultTextWeight,
		log:          log,
	}
}

func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	cols, err := e.targetCollections(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	perLimit := (limit + len(cols) - 1) / len(cols)

	byChunk := make(map[string]*models.SearchResult)
	queryVecs := make(map[string][]float32) // embed once per model
	failures := 0
	for _, col := range cols {
		vec, ok := queryVecs[col.Model]
		if !ok {
			vec, err = e.provider.EmbedText(ctx, query, col.Model)
			if err != nil {
				e.log.Warn("query embedding failed for collection",
					zap.String("collection", col.Name),
					zap.String("model", col.Model),
					zap.Error(err))
				failures++
				continue
			}
			queryVecs[col.Model] = vec
		}

		vectorHits, verr := e.store.Query(ctx, col.Name, opts.UserID, vec, perLimit, opts.Threshold)
		textHits, terr := e.store.SearchText(ctx, col.Name, opts.UserID, query, perLimit)
		if verr != nil && terr != nil {
			e.log.Warn("collection search failed",
				zap.String("collection", col.Name),
				zap.NamedError("vector_error", verr),
				zap.NamedError("text_error", terr))
			failures++
			continue
		}
		if verr != nil {
			e.log.Warn("vector search failed, lexical only", zap.String("collection", col.Name), zap.Error(verr))
		}
		if terr != nil {
			e.log.Warn("lexical search failed, vector only", zap.String("collection", col.Name), zap.Error(terr))
		}

		for _, hit := range vectorHits {
			e.accumulate(byChunk, hit, col.Name, e.vectorWeight*hit.Score)
		}
		for _, hit := range textHits {
			if existing, ok := byChunk[hit.ID]; ok {
				existing.Score += e.textWeight
				continue
			}
			e.accumulate(byChunk, hit, col.Name, e.textWeight)
		}
	}

	if failures == len(cols) {
		return nil, fmt.Errorf("search %q: %w", query, ErrAllCollectionsFailed)
	}

	results := dedupeByPrefix(byChunk)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) accumulate(byChunk map[string]*models.SearchResult, hit models.ScoredPoint, collection string, score float64) {
	if existing, ok := byChunk[hit.ID]; ok {
		// same chunk surfaced twice (e.g. vector hit repeated); keep the max
		if score > existing.Score {
			existing.Score = score
		}
		return
	}
	byChunk[hit.ID] = &models.SearchResult{
		ChunkID:    hit.ID,
		DocumentID: hit.DocumentID,
		Title:      hit.Title,
		Text:       hit.ChunkText,
		Collection: collection,
		Score:      score,
	}
}

func (e *Engine) targetCollections(ctx context.Context, pinned string) ([]models.Collection, error) {
	cols, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if pinned == "" {
		return cols, nil
	}
	for _, c := range cols {
		if c.Name == pinned {
			return []models.Collection{c}, nil
		}
	}
	return nil, fmt.Errorf("unknown collection %q", pinned)
}

// dedupeByPrefix collapses results whose normalized text prefix matches,
// keeping the highest score. Catches content double-indexed under
// different point ids.
func dedupeByPrefix(byChunk map[string]*models.SearchResult) []models.SearchResult {
	best := make(map[string]*models.SearchResult)
	for _, r := range byChunk {
		key := prefixKey(r.Text)
		if cur, ok := best[key]; !ok || r.Score > cur.Score {
			best[key] = r
		}
	}
	out := make([]models.SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, *r)
	}
	return out
}

func prefixKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > prefixKeyRunes {
		runes = runes[:prefixKeyRunes]
	}
	return string(runes)
}
