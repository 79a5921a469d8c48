package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/core"
)

type CollectionHandler struct {
	store core.VectorStore
	log   *zap.Logger
}

func NewCollectionHandler(store core.VectorStore, log *zap.Logger) *CollectionHandler {
	return &CollectionHandler{store: store, log: log}
}

type collectionInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Points     int64  `json:"points"`
}

func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.store.ListCollections(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]collectionInfo, 0, len(cols))
	for _, c := range cols {
		count, err := h.store.CountPoints(r.Context(), c.Name)
		if err != nil {
			h.log.Warn("count points", zap.String("collection", c.Name), zap.Error(err))
			count = -1
		}
		infos = append(infos, collectionInfo{
			Name:       c.Name,
			Model:      c.Model,
			Dimensions: c.Dimensions,
			Points:     count,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

// ClearCollection removes every point while keeping the collection itself.
// Clearing an unknown collection is a no-op.
func (h *CollectionHandler) ClearCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.Clear(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.DeleteCollection(r.Context(), name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
