package contact

import (
	"fmt"
	"net/http"
	"strings"

	"contactd/internal/models"
)

// ServiceError represents errors from the contact pipeline with HTTP context.
// Message is the only text a client ever sees; Reason is an internal code for
// logs and metrics.
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Reason     string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Code, e.Reason)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for each pipeline exit

func NewMethodNotAllowedError(method string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeMethodNotAllowed,
		Message:    models.MessageMethodNotAllowed,
		StatusCode: http.StatusMethodNotAllowed,
		Reason:     strings.ToLower(method),
	}
}

func NewInvalidInputError(reason string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidInput,
		Message:    models.MessageInvalidInput,
		StatusCode: http.StatusBadRequest,
		Reason:     reason,
		Err:        err,
	}
}

func NewAbuseError(reason, message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeAbuseDetected,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Reason:     reason,
		Err:        err,
	}
}

func NewRateLimitedError(reason string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRateLimited,
		Message:    models.MessageRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Reason:     reason,
	}
}

func NewCaptchaError(reason string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeCaptchaFailed,
		Message:    models.MessageCaptchaFailed,
		StatusCode: http.StatusBadRequest,
		Reason:     reason,
		Err:        err,
	}
}

func NewConfigurationError(missing []string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConfiguration,
		Message:    models.MessageConfiguration,
		StatusCode: http.StatusInternalServerError,
		Reason:     "missing:" + strings.Join(missing, ","),
		Err:        err,
	}
}

func NewSendFailedError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeSendFailed,
		Message:    models.MessageSendFailed,
		StatusCode: http.StatusInternalServerError,
		Reason:     "relay_error",
		Err:        err,
	}
}

func NewInternalError(reason string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    models.MessageInternalError,
		StatusCode: http.StatusInternalServerError,
		Reason:     reason,
		Err:        err,
	}
}
