package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cardsync/internal/syncservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *syncservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Modes and their cards.
	r.Route("/modes", func(r chi.Router) {
		r.Get("/", h.ListModes)
		r.Post("/", h.CreateMode)
		r.Route("/{mode}", func(r chi.Router) {
			r.Delete("/", h.DeleteMode)
			r.Get("/cards", h.ListCards)
			r.Post("/cards", h.CreateCard)
			r.Get("/cards/next-id", h.NextCardID)
			r.Get("/cards/{id}", h.GetCard)
			r.Patch("/cards/{id}", h.UpdateCard)
			r.Delete("/cards/{id}", h.DeleteCard)
			r.Post("/cards/{id}/options", h.AddOption)
		})
	})

	// Linkage rules.
	r.Get("/rules", h.ListRules)
	r.Post("/rules", h.CreateRule)
	r.Put("/rules", h.ReplaceRules)
	r.Get("/rules/{id}", h.GetRule)
	r.Put("/rules/{id}", h.UpdateRule)
	r.Delete("/rules/{id}", h.DeleteRule)
	r.Post("/rules/{id}/execute", h.ExecuteRule)
	r.Post("/rules/{id}/reverse", h.ReverseRule)
	r.Post("/rules/{id}/export", h.ExportRule)
	r.Get("/transforms", h.ListTransforms)

	// Full push, history and the authorization ledger.
	r.Post("/push", h.Push)
	r.Get("/history", h.ListHistory)
	r.Get("/history/{id}", h.GetHistory)
	r.Get("/authorizations", h.ListAuthorizations)

	// Addressing.
	r.Post("/keys", h.BuildKey)
	r.Get("/keys/parse", h.ParseKey)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
