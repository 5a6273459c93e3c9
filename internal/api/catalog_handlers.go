package api

import (
	"net/http"
	"strconv"
	"strings"
)

func (h *Handler) catalogSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "q is required")
		return
	}

	page, err := h.catalog.Search(r.Context(), query, pageParam(r))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) catalogCollection(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	tok, err := h.auth.DiscogsToken(r.Context(), userID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if tok == nil {
		writeError(w, http.StatusUnauthorized, CodeDiscogsNotConnected, "discogs is not connected")
		return
	}

	page, err := h.catalog.Collection(r.Context(), tok.Username, tok.AccessToken, tok.AccessTokenSecret, pageParam(r))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func pageParam(r *http.Request) int {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
