package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is the authorization tier of an account.
type Role string

const (
	RoleSuperAdmin       Role = "super_admin"
	RoleInstitutionAdmin Role = "institution_admin"
	RoleCandidate        Role = "candidate"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleInstitutionAdmin, RoleCandidate:
		return true
	default:
		return false
	}
}

// Account represents an identity in the system.
// Role is fixed at creation; changing it requires a new provisioning action.
type Account struct {
	// ID is the opaque unique identifier of the account.
	ID uuid.UUID `json:"id" db:"id"`

	// Email is stored normalized (trimmed, lower-case) and is unique.
	Email string `json:"email" db:"email"`

	// Name is the display name of the account holder.
	Name string `json:"name" db:"name"`

	// Role is the authorization tier of the account.
	Role Role `json:"role" db:"role"`

	// InstitutionID links institution admins (and optionally candidates)
	// to an institution. Nil for super admins.
	InstitutionID *uuid.UUID `json:"institution_id,omitempty" db:"institution_id"`

	// PasswordHash stores the bcrypt hash of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent credential rotation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SameInstitution reports whether both accounts belong to the same, non-nil institution.
func (a Account) SameInstitution(other Account) bool {
	if a.InstitutionID == nil || other.InstitutionID == nil {
		return false
	}
	return *a.InstitutionID == *other.InstitutionID
}

// AccountWithBalance is the listing projection used by administrative views.
type AccountWithBalance struct {
	Account
	Balance int64 `json:"balance"`
}

// Institution groups institution admins and their members.
type Institution struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	EmailDomain string    `json:"email_domain" db:"email_domain"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
