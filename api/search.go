package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
)

// Search request bounds.
const (
	DefaultSearchK = 3
	MaxSearchK     = 50
)

// SearchHandler exposes raw retrieval, without prompt assembly or
// generation. Useful for debugging what the knowledge base returns.
type SearchHandler struct {
	retriever answer.Retriever
	logger    log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(retriever answer.Retriever, logger log.Logger) *SearchHandler {
	return &SearchHandler{retriever: retriever, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchRequest is the search request body.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", h.logger)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "query is required", h.logger)
		return
	}
	if req.K <= 0 {
		req.K = DefaultSearchK
	}
	if req.K > MaxSearchK {
		req.K = MaxSearchK
	}

	results, err := h.retriever.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		if errors.Is(err, index.ErrBadK) {
			writeError(w, http.StatusBadRequest, "INVALID_K", err.Error(), h.logger)
			return
		}
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", "retrieval failed", h.logger)
		return
	}

	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{ID: res.ID, Source: res.Source, Text: res.Text, Score: res.Score}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": out,
		"total":   len(out),
	}, h.logger)
}
