package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessGate_RoleMatrix(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	tokens := make(map[types.Role]string)
	for _, role := range []types.Role{types.RoleSuperAdmin, types.RoleInstitutionAdmin, types.RoleCandidate} {
		account := h.account(t, role, nil)
		token, _, err := h.sessions.Issue(ctx, account.ID, 0)
		require.NoError(t, err)
		tokens[role] = token
	}

	cases := []struct {
		caller   types.Role
		required types.Role
		allowed  bool
	}{
		{types.RoleSuperAdmin, types.RoleSuperAdmin, true},
		{types.RoleSuperAdmin, types.RoleInstitutionAdmin, true},
		{types.RoleSuperAdmin, types.RoleCandidate, true},
		{types.RoleInstitutionAdmin, types.RoleSuperAdmin, false},
		{types.RoleInstitutionAdmin, types.RoleInstitutionAdmin, true},
		{types.RoleInstitutionAdmin, types.RoleCandidate, false},
		{types.RoleCandidate, types.RoleSuperAdmin, false},
		{types.RoleCandidate, types.RoleInstitutionAdmin, false},
		{types.RoleCandidate, types.RoleCandidate, true},
	}
	for _, tc := range cases {
		caller, err := h.gate.Authorize(ctx, tokens[tc.caller], tc.required, nil)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s", tc.caller, tc.required)
			assert.Equal(t, tc.caller, caller.Role)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s -> %s", tc.caller, tc.required)
		}
	}
}

func TestAccessGate_Unauthenticated(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.gate.Authorize(context.Background(), "", types.RoleCandidate, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = h.gate.Authorize(context.Background(), "bogus", types.RoleCandidate, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAccessGate_PredicateNotEvaluatedOnRoleFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	candidate := h.account(t, types.RoleCandidate, nil)

	called := false
	pred := func(context.Context, types.Account) (bool, error) {
		called = true
		return true, nil
	}
	err := h.gate.Check(context.Background(), candidate, types.RoleInstitutionAdmin, pred)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, called)
}

func TestAccessGate_SameInstitution(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	first, err := h.identity.CreateInstitution(ctx, "First", "first.edu")
	require.NoError(t, err)
	second, err := h.identity.CreateInstitution(ctx, "Second", "second.edu")
	require.NoError(t, err)

	admin := h.account(t, types.RoleInstitutionAdmin, &first.ID)
	member := h.account(t, types.RoleCandidate, &first.ID)
	outsider := h.account(t, types.RoleCandidate, &second.ID)
	loner := h.account(t, types.RoleCandidate, nil)
	superAdmin := h.account(t, types.RoleSuperAdmin, nil)

	assert.NoError(t, h.gate.Check(ctx, admin, types.RoleInstitutionAdmin, SameInstitution(h.identity, member.ID)))
	assert.ErrorIs(t, h.gate.Check(ctx, admin, types.RoleInstitutionAdmin, SameInstitution(h.identity, outsider.ID)), ErrForbidden)
	assert.ErrorIs(t, h.gate.Check(ctx, admin, types.RoleInstitutionAdmin, SameInstitution(h.identity, loner.ID)), ErrForbidden)
	assert.ErrorIs(t, h.gate.Check(ctx, admin, types.RoleInstitutionAdmin, SameInstitution(h.identity, uuid.New())), ErrForbidden)
	assert.NoError(t, h.gate.Check(ctx, superAdmin, types.RoleInstitutionAdmin, SameInstitution(h.identity, outsider.ID)))
}

func TestAccessGate_SelfOnly(t *testing.T) {
	h := newHarness(t, testConfig())
	candidate := h.account(t, types.RoleCandidate, nil)
	other := h.account(t, types.RoleCandidate, nil)

	assert.NoError(t, h.gate.Check(context.Background(), candidate, types.RoleCandidate, SelfOnly(candidate.ID)))
	assert.ErrorIs(t, h.gate.Check(context.Background(), candidate, types.RoleCandidate, SelfOnly(other.ID)), ErrForbidden)
}
