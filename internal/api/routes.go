package api

import (
	"net/http"

	"contactd/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API.
//
// The contact routes accept every method so the handler itself answers 405
// with the JSON body and an Allow header.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Use(requestIDMiddleware)
	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)
	router.Use(securityHeadersMiddleware)
	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	router.HandleFunc("/api/contact", handlers.Contact)
	router.HandleFunc("/contact", handlers.Contact)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/health", handlers.HealthCheck).Methods(http.MethodGet, http.MethodHead)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse(models.MessageMethodNotAllowed))
	})

	return router
}
