package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/core/retry"
	"github.com/knowbase-io/knowbase/internal/core/textsplit"
)

// Progress is called after each completed batch with the number of
// sub-pieces embedded so far.
type Progress func(completed, total int)

// Orchestrator turns one document's chunks into exactly one unit-length
// vector per chunk. Oversized chunks are sub-split, batched, embedded
// sequentially, then merged back by mean-pooling.
type Orchestrator struct {
	provider    core.EmbeddingProvider
	splitter    *textsplit.Splitter
	batchSize   int
	callTimeout time.Duration
	policy      retry.Policy
	limiter     *rate.Limiter
	log         *zap.Logger
}

type OrchestratorConfig struct {
	BatchSize   int           // provider max inputs per call
	MaxTokens   int           // provider token budget per input
	CallTimeout time.Duration // per embedding call
	Retries     int           // retries after the first attempt
	BatchDelay  time.Duration // pacing between consecutive batches
}

func NewOrchestrator(provider core.EmbeddingProvider, cfg OrchestratorConfig, log *zap.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 100 * time.Millisecond
	}
	return &Orchestrator{
		provider:    provider,
		splitter:    textsplit.New(cfg.MaxTokens),
		batchSize:   cfg.BatchSize,
		callTimeout: cfg.CallTimeout,
		policy: retry.Policy{
			MaxAttempts: cfg.Retries + 1,
			BaseDelay:   500 * time.Millisecond,
			Retryable:   IsTransient,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		log:     log,
	}
}

type piece struct {
	text          string
	originalIndex int
}

// EmbedChunks returns one vector per chunk, in chunk order. A chunk whose
// text cannot be brought under the token budget is skipped (nil vector)
// and logged; its siblings still embed. Provider failures that survive the
// retry policy fail the whole call.
func (o *Orchestrator) EmbedChunks(ctx context.Context, chunks []string, model string, dims int, progress Progress) ([][]float32, error) {
	pieces := o.subSplit(chunks)
	if len(pieces) == 0 {
		return make([][]float32, len(chunks)), nil
	}

	vectors := make([][]float32, len(pieces))
	total := len(pieces)
	done := 0
	for batchIdx, start := 0, 0; start < len(pieces); batchIdx++ {
		end := start + o.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		// paced: the first batch consumes the initial token, later ones
		// wait out the inter-batch delay
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}

		var embedded [][]float32
		err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			defer cancel()
			var callErr error
			embedded, callErr = o.provider.EmbedTexts(callCtx, texts, model)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", batchIdx, err)
		}

		for i, vec := range embedded {
			if dims > 0 && len(vec) != dims {
				return nil, fmt.Errorf("embed batch %d item %d: got %d dims, collection expects %d: %w",
					batchIdx, i, len(vec), dims, ErrDimensionMismatch)
			}
			vectors[start+i] = vec
		}

		done += len(batch)
		if progress != nil {
			progress(done, total)
		}
		start = end
	}

	return o.merge(chunks, pieces, vectors), nil
}

// subSplit expands oversized chunks through the splitter, recording each
// piece's parent chunk.
func (o *Orchestrator) subSplit(chunks []string) []piece {
	var pieces []piece
	for i, chunk := range chunks {
		if o.splitter.Fits(chunk) {
			pieces = append(pieces, piece{text: chunk, originalIndex: i})
			continue
		}
		parts := o.splitter.Split(chunk)
		kept := 0
		for _, part := range parts {
			if textsplit.EstimateTokens(part) > o.splitter.MaxTokens {
				// deepest split still over budget; drop the piece
				o.log.Warn("dropping over-budget piece",
					zap.Int("chunk_index", i),
					zap.Int("estimated_tokens", textsplit.EstimateTokens(part)),
					zap.Int("budget", o.splitter.MaxTokens))
				continue
			}
			pieces = append(pieces, piece{text: part, originalIndex: i})
			kept++
		}
		if kept == 0 && len(parts) > 0 {
			o.log.Warn("chunk unembeddable after split, skipping", zap.Int("chunk_index", i))
		}
	}
	return pieces
}

// merge groups piece vectors by parent chunk: multi-piece chunks get the
// element-wise mean, then every vector is L2-normalized.
func (o *Orchestrator) merge(chunks []string, pieces []piece, vectors [][]float32) [][]float32 {
	sums := make([][]float64, len(chunks))
	counts := make([]int, len(chunks))
	for i, p := range pieces {
		vec := vectors[i]
		if vec == nil {
			continue
		}
		if sums[p.originalIndex] == nil {
			sums[p.originalIndex] = make([]float64, len(vec))
		}
		for j, v := range vec {
			sums[p.originalIndex][j] += float64(v)
		}
		counts[p.originalIndex]++
	}

	out := make([][]float32, len(chunks))
	for i, sum := range sums {
		if sum == nil || counts[i] == 0 {
			continue
		}
		merged := make([]float32, len(sum))
		for j, v := range sum {
			merged[j] = float32(v / float64(counts[i]))
		}
		out[i] = normalize(merged)
	}
	return out
}

// normalize scales a vector to unit L2 norm; zero vectors pass through.
func normalize(vec []float32) []float32 {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	if sq == 0 {
		return vec
	}
	norm := math.Sqrt(sq)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
