package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plangen/internal/http/handlers"
	"plangen/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/generations", func(r chi.Router) {
		r.Use(middleware.UserID)
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
			Post("/", app.Submit)
		r.Get("/{job_id}", app.Status)
		r.Get("/{job_id}/result", app.Result)
		r.Delete("/{job_id}", app.Cancel)
	})

	return r
}
