// Package api exposes the JSON action surface over a chi router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/oyama27/vinylog/internal/app/auth"
	"github.com/oyama27/vinylog/internal/app/session"
	"github.com/oyama27/vinylog/internal/infra/discogs"
)

// CatalogClient is the slice of the catalog client the read routes use.
type CatalogClient interface {
	Search(ctx context.Context, query string, page int) (*discogs.SearchPage, error)
	Collection(ctx context.Context, username, token, tokenSecret string, page int) (*discogs.CollectionPage, error)
}

// Config carries the handler-level settings.
type Config struct {
	// AppOrigin is where the auth callbacks send the browser back to.
	AppOrigin string
}

// Handler carries the route handlers' dependencies.
type Handler struct {
	engine    *session.Engine
	auth      *auth.Manager
	catalog   CatalogClient
	appOrigin string
}

// NewHandler creates the action-surface handler.
func NewHandler(engine *session.Engine, authMgr *auth.Manager, catalog CatalogClient, cfg Config) *Handler {
	return &Handler{
		engine:    engine,
		auth:      authMgr,
		catalog:   catalog,
		appOrigin: cfg.AppOrigin,
	}
}

// Router assembles the routes with the middleware stack. The auth subtree
// carries a per-IP rate limit: every start mints a stored state record.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	// The identity cookie must ride cross-origin requests from the app.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.appOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(RequestLogger)

	r.Get("/healthz", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", h.sessionStart)
			r.Get("/current", h.sessionCurrent)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/pause", h.sessionOp(h.engine.Pause))
				r.Post("/resume", h.sessionOp(h.engine.Resume))
				r.Post("/next", h.sessionOp(h.engine.Advance))
				r.Post("/skip", h.sessionOp(h.engine.Skip))
				r.Post("/end", h.sessionOp(h.engine.End))
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))

			r.Get("/status", h.authStatus)
			r.Route("/{service}", func(r chi.Router) {
				r.Get("/start", h.authStart)
				r.Post("/start", h.authStart)
				r.Get("/callback", h.authCallback)
				r.Post("/disconnect", h.authDisconnect)
			})
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/search", h.catalogSearch)
			r.Get("/collection", h.catalogCollection)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
