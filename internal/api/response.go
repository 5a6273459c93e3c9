package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"

	"github.com/oyama27/vinylog/internal/app/session"
	"github.com/oyama27/vinylog/internal/infra/discogs"
)

// Error codes carried in the JSON error envelope.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidReleaseID    = "INVALID_RELEASE_ID"
	CodeInvalidState        = "INVALID_STATE"
	CodeLastfmNotConnected  = "LASTFM_NOT_CONNECTED"
	CodeDiscogsNotConnected = "DISCOGS_NOT_CONNECTED"
	CodeAuthDenied          = "AUTH_DENIED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeDiscogsRateLimit    = "DISCOGS_RATE_LIMIT"
	CodeConfigError         = "CONFIG_ERROR"
	CodeInvalidTrackIndex   = "INVALID_TRACK_INDEX"
	CodeInternal            = "INTERNAL_ERROR"
	CodeDiscogsError        = "DISCOGS_ERROR"
	CodeDiscogsUnavailable  = "DISCOGS_UNAVAILABLE"
	CodeLastfmError         = "LASTFM_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Msgf("response write failed: error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeMappedError translates engine and catalog errors into the envelope.
// Flow-specific errors (the auth callbacks) are mapped by their handlers
// before falling back here.
func writeMappedError(w http.ResponseWriter, err error) {
	var rateErr *discogs.RateLimitError
	var upstreamErr *discogs.UpstreamError

	switch {
	case errors.Is(err, session.ErrInvalidRelease):
		writeError(w, http.StatusBadRequest, CodeInvalidReleaseID, err.Error())
	case errors.Is(err, session.ErrNoTracks):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, session.ErrInvalidState):
		writeError(w, http.StatusBadRequest, CodeInvalidState, err.Error())
	case errors.Is(err, session.ErrNotConnected):
		writeError(w, http.StatusUnauthorized, CodeLastfmNotConnected, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeSessionNotFound, err.Error())
	case errors.Is(err, session.ErrTrackIndex):
		writeError(w, http.StatusInternalServerError, CodeInvalidTrackIndex, err.Error())
	case errors.Is(err, discogs.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, CodeConfigError, err.Error())
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			secs := int((rateErr.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, http.StatusTooManyRequests, CodeDiscogsRateLimit, err.Error())
	case errors.As(err, &upstreamErr):
		if upstreamErr.ClientError() {
			writeError(w, http.StatusBadRequest, CodeDiscogsError, err.Error())
		} else {
			writeError(w, http.StatusBadGateway, CodeDiscogsUnavailable, err.Error())
		}
	case errors.Is(err, discogs.ErrMalformedPayload):
		writeError(w, http.StatusBadGateway, CodeDiscogsUnavailable, err.Error())
	default:
		zlog.Error().Msgf("unclassified error: %v", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
