package api

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

type ctxKey int

const userIDKey ctxKey = iota

// identityCookie carries the caller's anonymous id. The id is the only
// notion of a user the service has.
const identityCookie = "vinylog_uid"

const identityMaxAge = 365 * 24 * 60 * 60

// Identity reads the caller's id cookie, minting one on first contact,
// and puts the id on the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := ""
		if c, err := r.Cookie(identityCookie); err == nil {
			uid = c.Value
		}
		if uid == "" {
			uid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     identityCookie,
				Value:    uid,
				Path:     "/",
				MaxAge:   identityMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zlog.Debug().Msgf("request handled: method=%s path=%s status=%d duration=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
