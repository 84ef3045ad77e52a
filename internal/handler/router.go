package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/classbook/internal/auth"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Classes  *ClassHandler
	Bookings *BookingHandler
	Users    *UserHandler
	Issuer   *auth.Issuer
	DB       Pinger
	Log      *slog.Logger
}

// NewRouter builds the API router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(d.Log))           // structured access log
	r.Use(CORS)                    // permissive CORS for demo

	r.Get("/health", HealthCheck(d.DB))

	r.Post("/users", d.Users.Register)
	r.Post("/auth/token", d.Users.Login)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Issuer))

		r.Get("/users/me", d.Users.Me)
		r.Put("/users/me", d.Users.UpdateMe)

		r.Route("/classes", func(r chi.Router) {
			r.Get("/", d.Classes.ListClasses)
			r.Post("/", d.Classes.CreateClass)
			r.Get("/{id}", d.Classes.GetClass)
			r.Put("/{id}", d.Classes.UpdateClass)
			r.Delete("/{id}", d.Classes.DeleteClass)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", d.Bookings.ListBookings)
			r.Post("/", d.Bookings.CreateBooking)
			r.Post("/confirm-attendance", d.Bookings.ConfirmAttendance)
			r.Get("/{id}", d.Bookings.GetBooking)
			r.Post("/{id}/cancel", d.Bookings.CancelBooking)
		})
	})

	return r
}
