package reader

import (
	"fmt"
	"net/http"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
)

// APIError is a non-success response of the remote API
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reader API error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("reader API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates an APIError, truncating long bodies
func NewAPIError(statusCode int, message string, err error) *APIError {
	if len(message) > 512 {
		message = message[:512] + "..."
	}
	return &APIError{StatusCode: statusCode, Message: message, Err: err}
}

// classifyStatus maps a non-success status to the application error taxonomy
func classifyStatus(statusCode int, body string) error {
	apiErr := NewAPIError(statusCode, body, nil)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperrors.NewUnauthorizedError("remote service rejected the credential", apiErr)
	case statusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError("remote resource not found", apiErr)
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return apperrors.NewTransientError("remote service unavailable", apiErr)
	case statusCode == http.StatusBadRequest:
		return apperrors.NewValidationError("remote service rejected the request", apiErr)
	default:
		return apperrors.NewInternalError("unexpected remote response", apiErr)
	}
}
