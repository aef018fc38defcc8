package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrExpiredSession  = fmt.Errorf("%w: session expired", ErrUnauthenticated)
	ErrRevokedSession  = fmt.Errorf("%w: session revoked", ErrUnauthenticated)

	ErrForbidden           = errors.New("forbidden")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInstitutionNotFound = errors.New("institution not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateDomain     = errors.New("email domain already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLimitExceeded       = errors.New("balance limit exceeded")
	ErrTransientConflict   = errors.New("concurrent update conflict, retry")
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRateLimited         = errors.New("too many attempts")
	ErrBootstrapDisabled   = errors.New("bootstrap disabled")
	ErrStorageUnavailable  = errors.New("object storage not configured")
	ErrStatementNotFound   = errors.New("statement not found")
)

// RetryAfterError marks an error the caller may retry once After has elapsed.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string { return e.Err.Error() }

func (e *RetryAfterError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
