package ingest

// Stage identifies where in the pipeline a progress event was emitted.
type Stage string

const (
	StageRouting   Stage = "routing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageStoring   Stage = "storing"
	StageDone      Stage = "done"
)

// Event is one progress notification. Done/Total count embedded
// sub-pieces during StageEmbedding and chunks elsewhere.
type Event struct {
	DocumentID string `json:"document_id"`
	Stage      Stage  `json:"stage"`
	Done       int    `json:"done"`
	Total      int    `json:"total"`
}

// emit never blocks: a slow or absent consumer must not stall ingestion.
func emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
