package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/oyama27/vinylog/internal/app/auth"
	"github.com/oyama27/vinylog/internal/domain/token"
)

type startAuthResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type disconnectResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) authStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.auth.Status(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) authStart(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceParam(w, r)
	if !ok {
		return
	}

	var redirectURL string
	var err error
	switch svc {
	case token.ServiceLastfm:
		redirectURL, err = h.auth.StartLastfm(r.Context(), userIDFrom(r.Context()))
	case token.ServiceDiscogs:
		redirectURL, err = h.auth.StartDiscogs(r.Context(), userIDFrom(r.Context()))
	}
	if err != nil {
		if errors.Is(err, auth.ErrConfig) {
			writeError(w, http.StatusInternalServerError, CodeConfigError, err.Error())
			return
		}
		writeMappedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, startAuthResponse{RedirectURL: redirectURL})
}

func (h *Handler) authCallback(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	switch svc {
	case token.ServiceLastfm:
		if err := h.auth.CallbackLastfm(r.Context(), q.Get("token"), q.Get("state")); err != nil {
			h.writeLastfmCallbackError(w, err)
			return
		}
	case token.ServiceDiscogs:
		if err := h.auth.CallbackDiscogs(r.Context(), q.Get("oauth_token"), q.Get("oauth_verifier")); err != nil {
			h.writeDiscogsCallbackError(w, err)
			return
		}
	}

	http.Redirect(w, r, h.appOrigin+"/?"+string(svc)+"=connected", http.StatusFound)
}

func (h *Handler) authDisconnect(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceParam(w, r)
	if !ok {
		return
	}

	if err := h.auth.Disconnect(r.Context(), userIDFrom(r.Context()), svc); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{Success: true})
}

func (h *Handler) serviceParam(w http.ResponseWriter, r *http.Request) (token.Service, bool) {
	svc, err := token.ParseService(chi.URLParam(r, "service"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return "", false
	}
	return svc, true
}

// writeLastfmCallbackError maps the single-token exchange failures. An
// unclassified error here is an upstream exchange failure, not an
// internal one.
func (h *Handler) writeLastfmCallbackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, CodeInvalidState, err.Error())
	case errors.Is(err, auth.ErrDenied):
		writeError(w, http.StatusForbidden, CodeAuthDenied, err.Error())
	case errors.Is(err, auth.ErrConfig):
		writeError(w, http.StatusInternalServerError, CodeConfigError, err.Error())
	default:
		writeError(w, http.StatusBadGateway, CodeLastfmError, err.Error())
	}
}

// writeDiscogsCallbackError maps the OAuth exchange failures. Unlike the
// single-token flow, an unknown or replayed request token maps to 403.
func (h *Handler) writeDiscogsCallbackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		writeError(w, http.StatusForbidden, CodeInvalidState, err.Error())
	case errors.Is(err, auth.ErrDenied):
		writeError(w, http.StatusForbidden, CodeAuthDenied, err.Error())
	case errors.Is(err, auth.ErrConfig):
		writeError(w, http.StatusInternalServerError, CodeConfigError, err.Error())
	default:
		writeMappedError(w, err)
	}
}
