package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")

	// ErrVersionConflict is returned when a write lost a serialization or
	// deadlock race and may be retried as a whole.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInsufficientFunds is returned when a mutation would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceLimit is returned when a mutation would exceed the configured maximum.
	ErrBalanceLimit = errors.New("balance limit exceeded")

	// ErrNoChange is returned when a mutation resolves to a zero delta.
	ErrNoChange = errors.New("no change")

	// ErrDuplicateKey is returned when an idempotency key was already used
	// for the account within the retention window.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

const (
	uniqueViolation      = "23505"
	foreignKeyViolation  = "23503"
	numericOutOfRange    = "22003"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == uniqueViolation
}

// classifyWrite maps retryable and range errors of a balance write to store sentinels.
func classifyWrite(err error) error {
	switch pqCode(err) {
	case serializationFailure, deadlockDetected:
		return ErrVersionConflict
	case numericOutOfRange:
		return ErrBalanceLimit
	case foreignKeyViolation:
		return ErrNotFound
	default:
		return err
	}
}
