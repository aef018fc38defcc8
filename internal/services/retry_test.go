package services

import (
	"context"
	"errors"
	"testing"

	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConflicts_StopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := retryConflicts(context.Background(), 5, func(int) error {
		calls++
		if calls < 2 {
			return store.ErrVersionConflict
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryConflicts_Exhausted(t *testing.T) {
	attempts := []int{}
	err := retryConflicts(context.Background(), 3, func(attempt int) error {
		attempts = append(attempts, attempt)
		return store.ErrVersionConflict
	})
	require.ErrorIs(t, err, ErrTransientConflict)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetryConflicts_CancelledContextStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryConflicts(ctx, 5, func(int) error {
		calls++
		return store.ErrVersionConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
