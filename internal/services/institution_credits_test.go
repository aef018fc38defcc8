package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestInstitutionCredits_AmountAndSetTo(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	institution, err := h.identity.CreateInstitution(ctx, "Acme", "acme.edu")
	require.NoError(t, err)

	balance, entries, err := h.pools.Pool(ctx, institution.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, balance.Balance)
	assert.Empty(t, entries)

	newBalance, err := h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(40), Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), newBalance)

	newBalance, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{SetTo: ptr(25), Reason: "true-up", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), newBalance)

	balance, entries, err = h.pools.Pool(ctx, institution.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance.Balance)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(-15), entries[0].Delta)
	assert.Equal(t, "true-up", entries[0].Reason)
	require.NotNil(t, entries[0].SetTo)
	assert.Equal(t, int64(25), *entries[0].SetTo)
	assert.Equal(t, ReasonPoolTopUp, entries[1].Reason)
	assert.Nil(t, entries[1].SetTo)
}

func TestInstitutionCredits_Validation(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	institution, err := h.identity.CreateInstitution(ctx, "Acme", "acme.edu")
	require.NoError(t, err)

	cases := map[string]PoolAdjustment{
		"neither":  {Actor: "a"},
		"both":     {Amount: ptr(1), SetTo: ptr(1), Actor: "a"},
		"zero":     {Amount: ptr(0), Actor: "a"},
		"negative": {SetTo: ptr(-1), Actor: "a"},
		"no actor": {Amount: ptr(1)},
	}
	for name, adj := range cases {
		_, err := h.pools.Adjust(ctx, institution.ID, adj)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	// setting the current balance is a zero delta
	_, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{SetTo: ptr(0), Actor: "a"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(-1), Actor: "a"})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{SetTo: ptr(2_000_000), Actor: "a"})
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestInstitutionCredits_UnknownInstitution(t *testing.T) {
	h := newHarness(t, testConfig())

	_, _, err := h.pools.Pool(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrInstitutionNotFound)

	_, err = h.pools.Adjust(context.Background(), uuid.New(), PoolAdjustment{Amount: ptr(5), Actor: "a"})
	assert.ErrorIs(t, err, ErrInstitutionNotFound)
}

func TestInstitutionCredits_RetriesSerializationFailures(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	institution, err := h.identity.CreateInstitution(ctx, "Acme", "acme.edu")
	require.NoError(t, err)

	h.poolRepo.forceConflicts = 2
	balance, err := h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(9), Actor: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), balance)

	h.poolRepo.forceConflicts = 5
	_, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(9), Actor: "a"})
	assert.ErrorIs(t, err, ErrTransientConflict)
}

func TestInstitutionCredits_ConcurrentDrawDownStopsAtZero(t *testing.T) {
	const workers = 20

	h := newHarness(t, testConfig())
	ctx := context.Background()
	institution, err := h.identity.CreateInstitution(ctx, "Acme", "acme.edu")
	require.NoError(t, err)
	_, err = h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(30), Actor: "a"})
	require.NoError(t, err)

	var (
		wg                      sync.WaitGroup
		mu                      sync.Mutex
		succeeded, insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.pools.Adjust(ctx, institution.ID, PoolAdjustment{Amount: ptr(-3), Actor: "a"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected adjust error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, insufficient)
	balance, _, err := h.pools.Pool(ctx, institution.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, balance.Balance)
}
