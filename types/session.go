package types

import (
	"time"

	"github.com/google/uuid"
)

// Session binds an opaque token to an account. Only the SHA-256 of the
// token is persisted.
type Session struct {
	TokenHash []byte     `json:"-" db:"token_hash"`
	AccountID uuid.UUID  `json:"account_id" db:"account_id"`
	IssuedAt  time.Time  `json:"issued_at" db:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Revoked reports whether the session was explicitly revoked.
func (s Session) Revoked() bool {
	return s.RevokedAt != nil
}

// ValidAt reports whether the session is usable at the given instant.
func (s Session) ValidAt(now time.Time) bool {
	return !s.Revoked() && now.Before(s.ExpiresAt)
}
