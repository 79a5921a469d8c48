package chunker

import (
	"strings"

	"go.uber.org/zap"
)

// MaxChunks bounds memory on pathological inputs; chunking truncates at
// the cap instead of growing unbounded.
const MaxChunks = 10000

// Params are the retrieval-granularity settings for one embedding model.
type Params struct {
	Size    int
	Overlap int
}

var modelParams = map[string]Params{
	"BAAI/bge-m3":            {Size: 900, Overlap: 120},
	"BAAI/bge-large-zh-v1.5": {Size: 480, Overlap: 80},
	"BAAI/bge-large-en-v1.5": {Size: 900, Overlap: 100},
}

var defaultParams = Params{Size: 500, Overlap: 50}

// ParamsForModel returns the chunking parameters tuned for a model, or
// conservative defaults for unknown ones.
func ParamsForModel(model string) Params {
	if p, ok := modelParams[model]; ok {
		return p
	}
	return defaultParams
}

type Chunker struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Chunker {
	return &Chunker{log: log}
}

// Chunk cuts text into overlapping windows of p.Size runes. When a window
// ends mid-text it backs up to the nearest sentence-ending punctuation or
// newline, accepting a cut only past 30% of the window. The next window
// starts Overlap runes before the previous end. Whitespace-only input
// yields no chunks.
func (c *Chunker) Chunk(text string, p Params) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	size := p.Size
	if size <= 0 {
		size = defaultParams.Size
	}
	overlap := p.Overlap
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := sentenceCut(runes, start, end); cut > 0 {
			end = cut
		}

		if piece := string(runes[start:end]); strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(runes) {
			break
		}
		if len(chunks) >= MaxChunks {
			c.log.Warn("chunk cap reached, truncating document",
				zap.Int("cap", MaxChunks),
				zap.Int("consumed_runes", end),
				zap.Int("total_runes", len(runes)))
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// sentenceCut searches backward from end for a sentence boundary, accepting
// one only past 30% of the window. Returns the cut position after the
// boundary rune, or 0 when none qualifies.
func sentenceCut(runes []rune, start, end int) int {
	floor := start + (end-start)*3/10
	for i := end - 1; i > floor; i-- {
		switch runes[i] {
		case '。', '！', '？', '；', '.', '!', '?', ';', '\n':
			return i + 1
		}
	}
	return 0
}
