package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/functions-gateway/app"
	"github.com/upb/functions-gateway/functions"
	"github.com/upb/functions-gateway/handlers"
	"github.com/upb/functions-gateway/middleware"
	"github.com/upb/functions-gateway/utils"
)

// defaultRequestTimeout applies when the config does not set one
const defaultRequestTimeout = 30 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := deps.Config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))

	// CORS middleware
	if origins := deps.Config.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	var recorder functions.InvocationRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
		if deps.Config.Observability.MetricsEnabled {
			r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
		}
	}

	// Function routes (require authentication)
	if deps.Functions != nil {
		functions.Mount(r, deps.Functions, deps.AuthMiddleware, functions.MountOptions{
			Logger:       deps.Logger,
			MaxBodyBytes: deps.Config.Functions.MaxBodyBytes,
			Recorder:     recorder,
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}
