package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook is the messaging platform's callback surface.
type Webhook interface {
	VerifyHandler(w http.ResponseWriter, r *http.Request)
	ReceiveHandler(w http.ResponseWriter, r *http.Request)
}

func NewRouter(apiHandler *APIHandler, webhook Webhook) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Handle("/metrics", promhttp.Handler())

	if webhook != nil {
		r.Get("/webhook", webhook.VerifyHandler)
		r.Post("/webhook", webhook.ReceiveHandler)
	}

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/chat", apiHandler.ChatHandler)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/signup", apiHandler.SignupHandler)

			r.Get("/products", apiHandler.ListProductsHandler)
			r.Post("/products", apiHandler.CreateProductHandler)
			r.Get("/products/{productID}", apiHandler.GetProductHandler)
			r.Put("/products/{productID}", apiHandler.UpdateProductHandler)
			r.Delete("/products/{productID}", apiHandler.DeleteProductHandler)

			r.Post("/index/reload", apiHandler.ReloadIndexHandler)
			r.Get("/index/status", apiHandler.IndexStatusHandler)
		})
	})

	return r
}
