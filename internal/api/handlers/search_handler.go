package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	middleware "github.com/knowbase-io/knowbase/internal/api/middlewares"
	"github.com/knowbase-io/knowbase/internal/config"
	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/core/search"
)

type SearchHandler struct {
	engine *search.Engine
	llm    core.LLMProvider
	cfg    *config.Config
	log    *zap.Logger
}

func NewSearchHandler(engine *search.Engine, llm core.LLMProvider, cfg *config.Config, log *zap.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, llm: llm, cfg: cfg, log: log}
}

type searchRequest struct {
	Query      string  `json:"query"`
	Collection string  `json:"collection"`
	Limit      int     `json:"limit"`
	Threshold  float64 `json:"threshold"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.cfg.SearchLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = h.cfg.ScoreThreshold
	}

	results, err := h.engine.Search(r.Context(), req.Query, search.Options{
		Collection: req.Collection,
		UserID:     userID,
		Limit:      limit,
		Threshold:  threshold,
	})
	if err != nil {
		if errors.Is(err, search.ErrAllCollectionsFailed) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.log.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   req.Query,
		"count":   len(results),
		"results": results,
	})
}

type chatRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
}

// Chat retrieves the most relevant chunks and asks the model to answer
// strictly from them.
func (h *SearchHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		http.Error(w, "chat is not configured", http.StatusNotImplemented)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.cfg.SearchLimit
	}

	results, err := h.engine.Search(r.Context(), req.Question, search.Options{
		Collection: req.Collection,
		UserID:     userID,
		Limit:      limit,
		Threshold:  h.cfg.ScoreThreshold,
	})
	if err != nil && !errors.Is(err, search.ErrAllCollectionsFailed) {
		h.log.Error("retrieval for chat failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var contextBuilder strings.Builder
	for i, res := range results {
		fmt.Fprintf(&contextBuilder, "Source %d (%s):\n%s\n\n", i+1, res.Title, res.Text)
	}

	system := "You are an intelligent assistant. Answer the user's question based only on the provided document excerpts. " +
		"If the excerpts do not contain the answer, say you don't know. Do not invent information."

	prompt := fmt.Sprintf("Document excerpts:\n\n%sQuestion: %s", contextBuilder.String(), req.Question)
	if len(results) == 0 {
		prompt = fmt.Sprintf("No relevant documents were found.\n\nQuestion: %s", req.Question)
	}

	answer, err := h.llm.Generate(r.Context(), system, prompt)
	if err != nil {
		h.log.Error("generation failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("generation failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"answer":  answer,
		"sources": results,
	})
}
