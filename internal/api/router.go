package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vigor/internal/wellness"
)

// EventStreamer serves a user's change notifications as Server-Sent Events.
type EventStreamer interface {
	Stream(w http.ResponseWriter, r *http.Request, userID string)
}

// RouterConfig holds the optional parts of the API router.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// AllowedOrigins enables CORS for browser clients when non-empty.
	AllowedOrigins []string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events EventStreamer
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *wellness.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.AllowedOrigins))
	}
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(UserMiddleware)

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Get("/{id}", h.GetCategory)
		r.Put("/{id}", h.UpdateCategory)
		r.Delete("/{id}", h.DeleteCategory)
	})

	r.Route("/goals", func(r chi.Router) {
		r.Get("/", h.ListGoals)
		r.Post("/", h.CreateGoal)
		r.Get("/{id}", h.GetGoal)
		r.Put("/{id}", h.UpdateGoal)
		r.Delete("/{id}", h.DeleteGoal)
	})

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.Post("/", h.CreateEntry)
		r.Get("/{id}", h.GetEntry)
		r.Put("/{id}", h.UpdateEntry)
		r.Delete("/{id}", h.DeleteEntry)
	})

	r.Get("/dashboard", h.Dashboard)

	// SSE endpoint (protected by same auth middleware).
	if cfg.Events != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			cfg.Events.Stream(w, r, UserFromContext(r.Context()))
		})
	}

	return r
}
