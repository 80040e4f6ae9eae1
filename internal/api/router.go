package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps carries everything the router wires together.
type RouterDeps struct {
	Handler    *Handler
	Middleware *Middleware
	// UploadsDir, when set, is served read-only under /uploads/.
	UploadsDir string
	// HealthCheck reports readiness of the backing services.
	HealthCheck func() error
}

// NewRouter builds the chi route tree.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(deps.Middleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if deps.UploadsDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadsDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Middleware.RequireAuth)

			r.Route("/technician-application", func(r chi.Router) {
				r.Post("/start", deps.Handler.StartApplication)
				r.Post("/save-step", deps.Handler.SaveStep)
				r.Post("/submit", deps.Handler.SubmitApplication)
				r.Get("/{applicationID}", deps.Handler.GetApplication)

				r.Group(func(r chi.Router) {
					r.Use(deps.Middleware.RequireAdmin)
					r.Post("/review", deps.Handler.ReviewApplication)
					r.Post("/{applicationID}/documents/{field}/verify", deps.Handler.VerifyDocument)
				})
			})

			r.Get("/user/applications", deps.Handler.ListMyApplications)
		})

		// Customer search is public.
		r.Get("/technicians/search", deps.Handler.SearchTechnicians)
	})

	return r
}
