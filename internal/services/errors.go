package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks input the caller must correct before retrying
	// (missing fields, empty rejection comments, malformed dates).
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition marks a lifecycle operation attempted from a
	// state that does not permit it.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict marks an optimistic-concurrency collision: another actor
	// changed the task between read and write.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing or superseded task, review, or job order.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a transient infrastructure failure; safe to retry
	// with backoff, no state was mutated.
	ErrUnavailable = errors.New("unavailable")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps a classified error to the response code the API server
// should return. Unclassified errors are treated as transient.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
