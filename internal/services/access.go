package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/types"
)

// OwnerPredicate decides whether caller may act on a specific resource.
// It runs only after the role check has passed.
type OwnerPredicate func(ctx context.Context, caller types.Account) (bool, error)

// SessionValidator resolves a session token to an account.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (types.Account, error)
}

// AccessGate authorizes a request against a required role and an optional
// ownership predicate. Roles are not transitive: only SuperAdmin may act
// outside its own tier, and it bypasses ownership predicates.
type AccessGate struct {
	sessions SessionValidator
}

func NewAccessGate(sessions SessionValidator) *AccessGate {
	return &AccessGate{sessions: sessions}
}

// Authorize validates token and checks the resolved account.
func (g *AccessGate) Authorize(ctx context.Context, token string, required types.Role, pred OwnerPredicate) (types.Account, error) {
	if token == "" {
		return types.Account{}, ErrUnauthenticated
	}
	caller, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return types.Account{}, err
	}
	if err := g.Check(ctx, caller, required, pred); err != nil {
		return types.Account{}, err
	}
	return caller, nil
}

// Check applies the role and ownership rules to an already resolved caller.
func (g *AccessGate) Check(ctx context.Context, caller types.Account, required types.Role, pred OwnerPredicate) error {
	if caller.Role == types.RoleSuperAdmin {
		return nil
	}
	if caller.Role != required {
		return ErrForbidden
	}
	if pred == nil {
		return nil
	}
	ok, err := pred(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// SelfOnly allows callers acting on their own account.
func SelfOnly(targetID uuid.UUID) OwnerPredicate {
	return func(_ context.Context, caller types.Account) (bool, error) {
		return caller.ID == targetID, nil
	}
}

// SameInstitution allows callers whose institution matches the target
// account's. Unknown targets are reported as forbidden rather than missing.
func SameInstitution(identity *IdentityService, targetID uuid.UUID) OwnerPredicate {
	return func(ctx context.Context, caller types.Account) (bool, error) {
		target, err := identity.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return false, nil
			}
			return false, err
		}
		return caller.SameInstitution(target), nil
	}
}
