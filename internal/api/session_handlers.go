package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/oyama27/vinylog/internal/domain/play"
)

type startRequest struct {
	ReleaseID string `json:"releaseId"`
}

type sessionResponse struct {
	Session *play.Session `json:"session"`
}

func (h *Handler) sessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ReleaseID) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "releaseId is required")
		return
	}

	sess, err := h.engine.Start(r.Context(), userIDFrom(r.Context()), req.ReleaseID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

func (h *Handler) sessionCurrent(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Current(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

// sessionOp adapts one engine transition into a handler. The session id
// comes from the path, the user from the identity cookie.
func (h *Handler) sessionOp(op func(ctx context.Context, userID, id string) (*play.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := op(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Session: sess})
	}
}
