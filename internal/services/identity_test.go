package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got)

	for _, bad := range []string{"", "   ", "alice", "Alice <alice@example.com>", "a@b@c"} {
		_, err := NormalizeEmail(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "battery staple"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse"))

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateAccount_CaseInsensitiveUniqueness(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	req := NewAccount{Email: "Bob@Example.com", Name: "Bob", PasswordHash: "x", Role: types.RoleCandidate}
	account, err := h.identity.CreateAccount(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", account.Email)

	req.Email = " bob@EXAMPLE.com"
	_, err = h.identity.CreateAccount(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	found, err := h.identity.FindByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestCreateAccount_Validation(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	_, err := h.identity.CreateAccount(ctx, NewAccount{Email: "a@example.com", PasswordHash: "x", Role: "root"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.identity.CreateAccount(ctx, NewAccount{Email: "a@example.com", Role: types.RoleCandidate})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.identity.CreateAccount(ctx, NewAccount{Email: "a@example.com", PasswordHash: "x", Role: types.RoleCandidate, Grant: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFindByID_NotFound(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.identity.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	_, err := h.provisioning.RegisterCandidate(ctx, "Cand", "cand@example.com", "secret")
	require.NoError(t, err)

	_, err = h.identity.Authenticate(ctx, "cand@example.com", "secret")
	assert.NoError(t, err)
	_, err = h.identity.Authenticate(ctx, "cand@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.identity.Authenticate(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.identity.Authenticate(ctx, "garbage", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestInstitutions(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	institution, err := h.identity.CreateInstitution(ctx, " Uni ", "@UNI.edu")
	require.NoError(t, err)
	assert.Equal(t, "Uni", institution.Name)
	assert.Equal(t, "uni.edu", institution.EmailDomain)

	_, err = h.identity.CreateInstitution(ctx, "Other", "uni.edu")
	assert.ErrorIs(t, err, ErrDuplicateDomain)
	_, err = h.identity.CreateInstitution(ctx, "Bad", "localhost")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.identity.GetInstitution(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrInstitutionNotFound)

	member := h.account(t, types.RoleCandidate, &institution.ID)
	h.account(t, types.RoleCandidate, nil)

	items, total, err := h.identity.ListAccounts(ctx, store.AccountFilter{InstitutionID: &institution.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, member.ID, items[0].ID)
}
