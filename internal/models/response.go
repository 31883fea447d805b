// Package models - API response types.
//
// Response Design Principles:
// - Client-facing bodies are deliberately small: {ok, message} or {error}
// - Error text is generic; internal reason codes never leave the server
// - Health output carries component status but no secrets
package models

import (
	"time"
)

// ContactResponse is returned on a successful submission.
type ContactResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request. Error is a human-readable,
// non-leaking message.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Error codes used internally by the contact pipeline. They are logged and
// recorded as metric attributes, never sent to the client.
const (
	ErrorCodeMethodNotAllowed = "METHOD_NOT_ALLOWED" // 405
	ErrorCodeInvalidInput     = "INVALID_INPUT"      // 400
	ErrorCodeAbuseDetected    = "ABUSE_DETECTED"     // 400
	ErrorCodeRateLimited      = "RATE_LIMITED"       // 429
	ErrorCodeCaptchaFailed    = "CAPTCHA_FAILED"     // 400
	ErrorCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrorCodeSendFailed       = "SEND_FAILED"
	ErrorCodeInternalError    = "INTERNAL_ERROR"
)

// Client-facing messages.
const (
	MessageSent             = "Message sent successfully!"
	MessageMethodNotAllowed = "Method not allowed"
	MessageInvalidInput     = "Invalid input. Please check your data."
	MessageInvalidRequest   = "Invalid request"
	MessageTooFast          = "Please take your time filling the form"
	MessageRateLimited      = "Too many requests. Please try again later."
	MessageCaptchaFailed    = "Security verification failed. Please try again."
	MessageConfiguration    = "Server configuration error"
	MessageSendFailed       = "Failed to send the message. Please try again later."
	MessageInternalError    = "Internal server error"
)

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Error: message}
}

func NewContactResponse() *ContactResponse {
	return &ContactResponse{OK: true, Message: MessageSent}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records a component status. An unhealthy component marks the
// whole response degraded.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
