package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/enrolld/server/internal/auth"
	"github.com/enrolld/server/internal/http/handlers"
	"github.com/enrolld/server/internal/middleware"
	"github.com/enrolld/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(regHandler *handlers.RegistrationHandler, jwtService *auth.JWTService, customers repo.CustomerRepo) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/registration", func(r chi.Router) {
		r.Post("/start", regHandler.HandleStart)
		r.Post("/resend", regHandler.HandleResend)
		r.Post("/verify", regHandler.HandleVerify)
	})

	// Protected routes (require valid JWT for an active customer)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, customers))
		r.Get("/me", regHandler.HandleMe)
	})

	return r
}
