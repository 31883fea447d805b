package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"contactd/internal/clientip"
	"contactd/internal/contact"
	"contactd/internal/logger"
	"contactd/internal/models"
	"contactd/internal/ratelimit"
	"contactd/internal/version"
)

// ContactService is the pipeline the contact handler delegates to.
type ContactService interface {
	Submit(ctx context.Context, req models.ContactRequest, clientIP string) (*contact.Outcome, error)
	MissingSettings() []string
}

var _ ContactService = (*contact.Service)(nil)

// HealthCheckFunc reports whether a dependency is usable.
type HealthCheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheckFunc
}

// Handlers contains HTTP handlers for the contact API
type Handlers struct {
	service      ContactService
	resolver     *clientip.Resolver
	maxBodyBytes int64
	checks       []namedCheck
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithHealthCheck adds a named component to the health report.
func WithHealthCheck(name string, check HealthCheckFunc) HandlerOption {
	return func(h *Handlers) {
		h.checks = append(h.checks, namedCheck{name: name, check: check})
	}
}

// NewHandlers creates a new handlers instance. A nil resolver trusts no proxy
// headers.
func NewHandlers(service ContactService, resolver *clientip.Resolver, opts ...HandlerOption) *Handlers {
	if resolver == nil {
		resolver = clientip.NewResolver(nil)
	}
	h := &Handlers{
		service:      service,
		resolver:     resolver,
		maxBodyBytes: models.NewDefaultConfig().Server.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Contact handles contact form submissions
// POST /api/contact
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeServiceError(w, r, contact.NewMethodNotAllowedError(r.Method))
		return
	}

	req, err := h.decodeContactRequest(w, r)
	if err != nil {
		logger.FromContext(r.Context()).InfoContext(r.Context(), "Rejected malformed contact body", "error", err)
		h.writeServiceError(w, r, contact.NewInvalidInputError("malformed_body", err))
		return
	}

	out, err := h.service.Submit(r.Context(), req, h.resolver.Resolve(r))
	if out != nil {
		ratelimit.SetHeaders(w.Header(), out.RateLimit, !out.RateLimited)
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.NewContactResponse())
}

// decodeContactRequest reads exactly one JSON object no larger than the body
// limit. Unknown fields are rejected.
func (h *Handlers) decodeContactRequest(w http.ResponseWriter, r *http.Request) (models.ContactRequest, error) {
	var req models.ContactRequest

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return req, errors.New("unsupported content type " + ct)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return req, errors.New("request body must contain a single JSON object")
	}
	return req, nil
}

// HealthCheck handles health check requests
// GET /health
// Reports configuration completeness and every registered dependency. Missing
// settings are listed by name only.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.Version
	response.Uptime = version.Uptime().Round(time.Second).String()

	if missing := h.service.MissingSettings(); len(missing) > 0 {
		response.AddComponent("configuration", models.StatusUnhealthy, "missing: "+strings.Join(missing, ", "))
	} else {
		response.AddComponent("configuration", models.StatusHealthy, "All required settings present")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "Health check failed", "component", c.name, "error", err)
			response.AddComponent(c.name, models.StatusUnhealthy, "unavailable")
			continue
		}
		response.AddComponent(c.name, models.StatusHealthy, "operational")
	}

	status := http.StatusOK
	if response.Status != models.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// writeServiceError maps err to its status code and client message. Anything
// that is not a *contact.ServiceError becomes a generic 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *contact.ServiceError
	if !errors.As(err, &svcErr) {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "Unexpected handler error", "error", err)
		svcErr = contact.NewInternalError("unexpected", err)
	}

	resp := models.NewErrorResponse(svcErr.Message)
	resp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, svcErr.StatusCode, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing else can be sent.
		logger.FromContext(context.Background()).Error("Error encoding JSON response", "error", err)
	}
}
