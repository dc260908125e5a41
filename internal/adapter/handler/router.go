package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/storefront/internal/metrics"
)

func NewRouter(h *HTTPHandler, m *metrics.Metrics, defaultUserID string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Instrument(m))
	r.Use(middleware.Recoverer)
	r.Use(UserMiddleware(defaultUserID))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/items", h.ListItems)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/", h.AddToCart)
		r.Post("/checkout", h.Checkout)
		r.Get("/{id}", h.GetCartByID)
		r.Put("/{id}", h.UpdateItem)
		r.Delete("/{id}", h.RemoveItem)
	})

	r.Post("/webhooks/{provider}", h.Webhook)
	return r
}
