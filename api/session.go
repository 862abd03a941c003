package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/session"
)

// SessionHandler exposes conversation sessions over HTTP.
type SessionHandler struct {
	store  *session.Store
	logger log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(store *session.Store, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
}

// SessionInfo is the JSON shape of one session.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Turns     int       `json:"turns"`
}

func sessionInfo(s *session.Session) SessionInfo {
	return SessionInfo{
		ID:        s.ID.String(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt(),
		Turns:     s.Len(),
	}
}

// list returns all live sessions, newest first.
func (h *SessionHandler) list(w http.ResponseWriter, _ *http.Request) {
	sessions := h.store.List()
	infos := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = sessionInfo(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"total":    len(infos),
	}, h.logger)
}

// create starts a new empty session.
func (h *SessionHandler) create(w http.ResponseWriter, _ *http.Request) {
	s := h.store.Create()
	writeJSON(w, http.StatusCreated, sessionInfo(s), h.logger)
}

// delete removes a session by id.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SESSION_ID", "session id must be a UUID", h.logger)
		return
	}
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no such session", h.logger)
			return
		}
		h.logger.Error("deleting session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to delete session", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
