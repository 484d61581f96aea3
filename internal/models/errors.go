package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is a stable machine-readable error classification
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindAuthentication    ErrorKind = "AUTHENTICATION_FAILED"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindAlreadyRegistered ErrorKind = "ALREADY_REGISTERED"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
	KindPersistence       ErrorKind = "PERSISTENCE_ERROR"
	KindGateway           ErrorKind = "GATEWAY_ERROR"
	KindConfiguration     ErrorKind = "CONFIGURATION_ERROR"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
)

// AppError carries the kind, HTTP status and user-facing message of a failure
type AppError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError with the default status for its kind
func NewAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Status: StatusForKind(kind), Message: message, Err: err}
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyRegistered:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func ValidationError(message string, err error) *AppError {
	return NewAppError(KindValidation, message, err)
}

func AuthenticationError(message string) *AppError {
	return NewAppError(KindAuthentication, message, nil)
}

func NotFoundError(message string) *AppError {
	return NewAppError(KindNotFound, message, nil)
}

func AlreadyRegisteredError(message string, err error) *AppError {
	return NewAppError(KindAlreadyRegistered, message, err)
}

func PersistenceError(message string, err error) *AppError {
	return NewAppError(KindPersistence, message, err)
}

func GatewayError(message string, err error) *AppError {
	return NewAppError(KindGateway, message, err)
}

func ConfigurationError(message string, err error) *AppError {
	return NewAppError(KindConfiguration, message, err)
}

// AsAppError extracts an AppError from err, wrapping unknown errors as internal
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(KindInternal, "an unexpected error occurred", err)
}

// KindOf returns the kind of err, or KindInternal when err is not an AppError
func KindOf(err error) ErrorKind {
	return AsAppError(err).Kind
}

// ErrorResponse is the JSON envelope for every failed request
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     ErrorKind `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewErrorResponse builds the envelope for err
func NewErrorResponse(err *AppError, requestID string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Error:     err.Kind,
		Message:   err.Message,
		RequestID: requestID,
	}
}
