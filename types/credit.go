package types

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance is the cached projection of an account's ledger.
type CreditBalance struct {
	// AccountID owns this balance (1:1).
	AccountID uuid.UUID `json:"account_id" db:"account_id"`

	// Balance is the current number of credits; never negative.
	Balance int64 `json:"balance" db:"balance"`

	// Version increments on every mutation and guards optimistic updates.
	Version int64 `json:"version" db:"version"`

	// UpdatedAt is the timestamp of the last mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable record of a single balance mutation.
// Summing Delta over all entries of an account yields its Balance.
type LedgerEntry struct {
	ID uuid.UUID `json:"id" db:"id"`

	AccountID uuid.UUID `json:"account_id" db:"account_id"`

	// Delta is positive for credits and negative for debits.
	Delta int64 `json:"delta" db:"delta"`

	// BalanceAfter is the account balance once this entry was applied.
	BalanceAfter int64 `json:"balance_after" db:"balance_after"`

	Reason string `json:"reason" db:"reason"`

	// Actor identifies who authorized the mutation (account id or "system").
	Actor string `json:"actor" db:"actor"`

	// IdempotencyKey is the caller-supplied nonce, if any.
	IdempotencyKey string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LedgerMutation is a signed change applied against whatever the balance is
// at commit time. The write is rejected if the result would leave [0, MaxBalance].
type LedgerMutation struct {
	AccountID      uuid.UUID
	Delta          int64
	MaxBalance     int64
	Reason         string
	Actor          string
	IdempotencyKey string
	// NonceSince bounds the idempotency retention window.
	NonceSince time.Time
}

// InstitutionCreditBalance is the shared credit pool of an institution.
// Institutions without a pool row have a zero balance.
type InstitutionCreditBalance struct {
	InstitutionID uuid.UUID `json:"institution_id" db:"institution_id"`
	Balance       int64     `json:"balance" db:"balance"`
	Version       int64     `json:"version" db:"version"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// InstitutionCreditEntry records one change to an institution pool.
type InstitutionCreditEntry struct {
	ID            uuid.UUID `json:"id" db:"id"`
	InstitutionID uuid.UUID `json:"institution_id" db:"institution_id"`
	Delta         int64     `json:"delta" db:"delta"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	Reason        string    `json:"reason" db:"reason"`
	Actor         string    `json:"actor" db:"actor"`

	// SetTo is the requested absolute balance when the change was made with set_to.
	SetTo *int64 `json:"set_to,omitempty" db:"set_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InstitutionMutation changes a pool by Delta, or to SetTo when it is non-nil.
type InstitutionMutation struct {
	InstitutionID uuid.UUID
	Delta         int64
	SetTo         *int64
	MaxBalance    int64
	Reason        string
	Actor         string
}
