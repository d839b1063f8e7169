package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrQuotaExceeded    ErrorType = "QUOTA_EXCEEDED"
	ErrTransient        ErrorType = "TRANSIENT"
	ErrUnauthorized     ErrorType = "UNAUTHORIZED"
	ErrStoreUnavailable ErrorType = "STORE_UNAVAILABLE"
	ErrMalformed        ErrorType = "MALFORMED"
	ErrTimeout          ErrorType = "TIMEOUT"
	ErrInvalidInput     ErrorType = "INVALID_INPUT"
	ErrInternal         ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
	// Retryable marks errors the caller may retry later (e.g. after the quota window resets).
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// TypeOf returns the type of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrNotFound
}

// IsQuotaExceeded checks if the error is a quota exhausted error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return stderrors.As(err, &qe) || TypeOf(err) == ErrQuotaExceeded
}

// IsTransient checks if the error is a transient upstream failure
func IsTransient(err error) bool {
	return TypeOf(err) == ErrTransient
}

// IsUnauthorized checks if the upstream rejected our credential
func IsUnauthorized(err error) bool {
	return TypeOf(err) == ErrUnauthorized
}

// IsStoreUnavailable checks if the local store could not be reached
func IsStoreUnavailable(err error) bool {
	return TypeOf(err) == ErrStoreUnavailable
}

// IsMalformed checks if the error describes an invalid remote payload
func IsMalformed(err error) bool {
	return TypeOf(err) == ErrMalformed
}

// IsTimeout checks if the error is a timeout error
func IsTimeout(err error) bool {
	return TypeOf(err) == ErrTimeout
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return TypeOf(err) == ErrInvalidInput
}

// IsRunFatal reports whether err must abort a whole synchronization run
// instead of being absorbed by the feed or item that produced it.
func IsRunFatal(err error) bool {
	return IsQuotaExceeded(err) || IsUnauthorized(err) || IsStoreUnavailable(err) || IsTimeout(err)
}

// IsRetryable reports whether the caller may retry the operation later.
func IsRetryable(err error) bool {
	if IsQuotaExceeded(err) {
		return true
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// QuotaExceededError is returned when a quota zone has no budget left and
// the reset is too far away to wait for.
type QuotaExceededError struct {
	Zone       string
	Used       int64
	Limit      int64
	ResetAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d), resets in %v",
		e.Zone, e.Used, e.Limit, e.ResetAfter)
}

// NewQuotaExceededError creates a new QuotaExceededError
func NewQuotaExceededError(zone string, used, limit int64, resetAfter time.Duration) *QuotaExceededError {
	return &QuotaExceededError{
		Zone:       zone,
		Used:       used,
		Limit:      limit,
		ResetAfter: resetAfter,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return New(ErrNotFound, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return New(ErrUnauthorized, message, err)
}

// NewTransientError creates a new transient upstream error
func NewTransientError(message string, err error) *AppError {
	e := New(ErrTransient, message, err)
	e.Retryable = true
	return e
}

// NewStoreUnavailableError creates a new store unavailable error
func NewStoreUnavailableError(message string, err error) *AppError {
	return New(ErrStoreUnavailable, message, err)
}

// NewMalformedError creates a new malformed payload error
func NewMalformedError(message string, err error) *AppError {
	return New(ErrMalformed, message, err)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, err error) *AppError {
	e := New(ErrTimeout, message, err)
	e.Retryable = true
	return e
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// SyncInProgressError represents an error when a sync run is already pending or running
type SyncInProgressError struct {
	RunID string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync already in progress: run %s", e.RunID)
}

// NewSyncInProgressError creates a new SyncInProgressError
func NewSyncInProgressError(runID string) error {
	return &SyncInProgressError{
		RunID: runID,
	}
}

// IsSyncInProgress checks if the error reports an already active run
func IsSyncInProgress(err error) bool {
	var sip *SyncInProgressError
	return stderrors.As(err, &sip)
}
