package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/availability"
	"github.com/clinicore/clinic-scheduling/internal/directory"
	"github.com/clinicore/clinic-scheduling/internal/slot"
)

type RouterConfig struct {
	Appointments   *appointment.Service
	Availabilities availability.Store
	Expander       *availability.Expander
	Slots          slot.Store
	Directory      directory.Lookup
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Log            zerolog.Logger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandlers(cfg.Appointments, cfg.Availabilities, cfg.Expander, cfg.Slots, cfg.Directory, cfg.Log)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.BookAppointment)
		r.Get("/{id}", h.GetAppointment)
		r.Post("/{id}/status", h.TransitionAppointment)
		r.Post("/{id}/cancel", h.CancelAppointment)
		r.Post("/{id}/reschedule", h.RescheduleAppointment)
	})

	r.Route("/availabilities", func(r chi.Router) {
		r.Post("/", h.CreateAvailability)
		r.Post("/{id}/expand", h.ExpandAvailability)
	})

	r.Get("/patients/{id}/appointments", h.ListPatientAppointments)
	r.Get("/doctors/{id}/slots", h.ListDoctorSlots)

	return r
}
