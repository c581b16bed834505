package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eventtix/eventtix/internal/auth"
)

// NewRouter builds the full API router with the global middleware stack.
func NewRouter(h *Handler, tokens *auth.Manager, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog(logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/{eventID}", h.GetEvent)
			r.Get("/{eventID}/status", h.EventStatus)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(tokens))
				r.Post("/", h.CreateEvent)
				r.Post("/book", h.BookTicket)
				r.Post("/cancel", h.CancelBooking)
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(tokens))
			r.Get("/bookings", h.ListMyBookings)
		})
	})

	return r
}
