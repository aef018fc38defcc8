package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedHarness(t *testing.T) (*harness, *clock) {
	h := newHarness(t, testConfig())
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	h.sessions.now = c.Now
	return h, c
}

func TestSessionAuthority_IssueAndValidate(t *testing.T) {
	h, _ := newClockedHarness(t)
	ctx := context.Background()
	account := h.account(t, types.RoleSuperAdmin, nil)

	token, session, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.AccountID)
	assert.Equal(t, time.Hour, session.ExpiresAt.Sub(session.IssuedAt))

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)
	assert.NotEqual(t, raw, session.TokenHash)

	got, err := h.sessions.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
}

func TestSessionAuthority_TokensAreUnique(t *testing.T) {
	h, _ := newClockedHarness(t)
	account := h.account(t, types.RoleCandidate, nil)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, _, err := h.sessions.Issue(context.Background(), account.ID, 0)
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestSessionAuthority_RejectsUnknownAndMalformed(t *testing.T) {
	h, _ := newClockedHarness(t)

	for _, token := range []string{"", "not base64!", "c2hvcnQ", base64.RawURLEncoding.EncodeToString(make([]byte, tokenBytes))} {
		_, err := h.sessions.Validate(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
}

func TestSessionAuthority_ExpiryIsMonotonic(t *testing.T) {
	h, c := newClockedHarness(t)
	ctx := context.Background()
	account := h.account(t, types.RoleCandidate, nil)

	token, _, err := h.sessions.Issue(ctx, account.ID, 10*time.Minute)
	require.NoError(t, err)

	c.Advance(9 * time.Minute)
	_, err = h.sessions.Validate(ctx, token)
	require.NoError(t, err)

	c.Advance(time.Minute)
	_, err = h.sessions.Validate(ctx, token)
	require.ErrorIs(t, err, ErrExpiredSession)

	for i := 0; i < 3; i++ {
		c.Advance(time.Hour)
		_, err = h.sessions.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
}

func TestSessionAuthority_RevokeIsIdempotentAndFinal(t *testing.T) {
	h, _ := newClockedHarness(t)
	ctx := context.Background()
	account := h.account(t, types.RoleCandidate, nil)

	token, _, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)

	require.NoError(t, h.sessions.Revoke(ctx, token))
	require.NoError(t, h.sessions.Revoke(ctx, token))
	require.NoError(t, h.sessions.Revoke(ctx, "garbage"))
	require.NoError(t, h.sessions.Revoke(ctx, base64.RawURLEncoding.EncodeToString(make([]byte, tokenBytes))))

	for i := 0; i < 3; i++ {
		_, err = h.sessions.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrRevokedSession)
	}
}

func TestSessionAuthority_MultipleSessionsByDefault(t *testing.T) {
	h, _ := newClockedHarness(t)
	ctx := context.Background()
	account := h.account(t, types.RoleCandidate, nil)

	first, _, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)
	second, _, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)

	_, err = h.sessions.Validate(ctx, first)
	assert.NoError(t, err)
	_, err = h.sessions.Validate(ctx, second)
	assert.NoError(t, err)
}

func TestSessionAuthority_SingleActivePolicy(t *testing.T) {
	h, _ := newClockedHarness(t)
	h.sessions.singleActive = true
	ctx := context.Background()
	account := h.account(t, types.RoleCandidate, nil)
	other := h.account(t, types.RoleCandidate, nil)

	first, _, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)
	otherToken, _, err := h.sessions.Issue(ctx, other.ID, 0)
	require.NoError(t, err)
	second, _, err := h.sessions.Issue(ctx, account.ID, 0)
	require.NoError(t, err)

	_, err = h.sessions.Validate(ctx, first)
	assert.ErrorIs(t, err, ErrRevokedSession)
	_, err = h.sessions.Validate(ctx, second)
	assert.NoError(t, err)
	_, err = h.sessions.Validate(ctx, otherToken)
	assert.NoError(t, err)
}

func TestSessionAuthority_ValidateFailsForMissingAccount(t *testing.T) {
	h, _ := newClockedHarness(t)

	token, _, err := h.sessions.Issue(context.Background(), uuid.New(), 0)
	require.NoError(t, err)

	_, err = h.sessions.Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionAuthority_Sweep(t *testing.T) {
	h, c := newClockedHarness(t)
	ctx := context.Background()
	account := h.account(t, types.RoleCandidate, nil)

	_, _, err := h.sessions.Issue(ctx, account.ID, time.Minute)
	require.NoError(t, err)
	live, _, err := h.sessions.Issue(ctx, account.ID, 48*time.Hour)
	require.NoError(t, err)

	c.Advance(2 * time.Hour)
	deleted, err := h.sessions.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = h.sessions.Validate(ctx, live)
	assert.NoError(t, err)
}
