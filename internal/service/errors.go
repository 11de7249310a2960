// Package service holds the error taxonomy shared by the answer engine and the
// HTTP handlers.
package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested project or resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when the language model call fails.
	ErrExternalService = errors.New("external service error")
)

// ValidationError reports a rejected request field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// HTTPStatus maps err onto the status code a handler responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for err. Internal errors are
// replaced by fallback so that storage or filesystem details are not exposed.
func PublicMessage(err error, fallback string) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return fmt.Sprintf("Validation error: %s %s", validationErr.Field, validationErr.Message)
	case errors.Is(err, ErrInvalidInput):
		return "Invalid input"
	case errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrExternalService):
		return err.Error()
	default:
		return fallback
	}
}
