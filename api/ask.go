package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/session"
)

// AskHandler streams answers over Server-Sent Events.
//
// Request body: {"query": "...", "sessionId": "..."} — sessionId is
// optional; omitting it starts a new session.
//
// Event types:
//   - chunk: partial answer text {"text": "..."}
//   - done:  final answer {"response": "...", "sessionId": "...", "sources": [...]}
//   - error: {"code": "...", "message": "..."}
type AskHandler struct {
	svc    *answer.Service
	store  *session.Store
	logger log.Logger
}

// NewAskHandler creates an ask handler.
func NewAskHandler(svc *answer.Service, store *session.Store, logger log.Logger) *AskHandler {
	return &AskHandler{svc: svc, store: store, logger: logger}
}

// RegisterRoutes registers ask routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask/stream", h.handleStream)
}

// AskRequest is the streaming ask request body.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// SSEChunkData is the data for "chunk" events.
type SSEChunkData struct {
	Text string `json:"text"`
}

// SSEDoneData is the data for "done" events.
type SSEDoneData struct {
	Response  string   `json:"response"`
	SessionID string   `json:"sessionId"`
	Sources   []string `json:"sources"`
}

// SSEErrorData is the data for "error" events.
type SSEErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *AskHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeSSEError(w, flusher, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Query == "" {
		h.writeSSEError(w, flusher, "MISSING_QUERY", "query is required")
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			h.writeSSEError(w, flusher, "INVALID_SESSION_ID", "sessionId must be a UUID")
			return
		}
		sessionID = id
	}
	sess, err := h.store.GetOrCreate(sessionID)
	if err != nil {
		h.writeSSEError(w, flusher, "SESSION_NOT_FOUND", "no such session")
		return
	}

	ctx := r.Context()
	h.logger.Info("answer stream started", "sessionId", sess.ID)

	ans, err := h.svc.Answer(ctx, sess.Turns(), req.Query,
		func(ctx context.Context, fragment string) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h.writeSSEChunk(w, flusher, fragment)
			return nil
		})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info("client disconnected", "sessionId", sess.ID)
			return
		}
		h.logger.Error("answer failed", "error", err, "sessionId", sess.ID)
		h.writeSSEError(w, flusher, errorCode(err), err.Error())
		return
	}

	sess.AddExchange(req.Query, ans.Text)
	h.writeSSEDone(w, flusher, ans, sess.ID.String())
	h.logger.Info("answer stream completed",
		"sessionId", sess.ID,
		"responseLen", len(ans.Text),
		"sources", len(ans.Sources))
}

// errorCode maps pipeline failures onto stable client-facing codes.
func errorCode(err error) string {
	var genErr *answer.GenerationError
	if errors.As(err, &genErr) {
		return "GENERATION_FAILED"
	}
	return "ANSWER_FAILED"
}

func (h *AskHandler) writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, text string) {
	data, _ := json.Marshal(SSEChunkData{Text: text})
	fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", data)
	flusher.Flush()
}

func (h *AskHandler) writeSSEDone(w http.ResponseWriter, flusher http.Flusher, ans answer.Answer, sessionID string) {
	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	data, _ := json.Marshal(SSEDoneData{Response: ans.Text, SessionID: sessionID, Sources: sources})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	flusher.Flush()
}

func (h *AskHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	data, _ := json.Marshal(SSEErrorData{Code: code, Message: message})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	flusher.Flush()
}
