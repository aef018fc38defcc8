package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/config"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// ReasonPoolTopUp is recorded when a super admin adjusts a pool without a reason.
const ReasonPoolTopUp = "super_admin_topup"

// InstitutionCreditRepository defines persistence operations for institution pools.
type InstitutionCreditRepository interface {
	GetBalance(ctx context.Context, institutionID uuid.UUID) (types.InstitutionCreditBalance, error)
	Apply(ctx context.Context, m types.InstitutionMutation) (types.InstitutionCreditEntry, types.InstitutionCreditBalance, error)
	ListEntries(ctx context.Context, institutionID uuid.UUID, limit int) ([]types.InstitutionCreditEntry, error)
	Total(ctx context.Context) (int64, error)
}

// PoolAdjustment changes a pool by Amount, or to SetTo when it is set.
// Exactly one of the two must be given.
type PoolAdjustment struct {
	Amount *int64
	SetTo  *int64
	Reason string
	Actor  string
}

// InstitutionCredits manages the shared credit pool of each institution.
type InstitutionCredits struct {
	repo       InstitutionCreditRepository
	identity   *IdentityService
	maxBalance int64
	maxRetries int
	timeout    time.Duration
	log        *zap.Logger
}

func NewInstitutionCredits(repo InstitutionCreditRepository, identity *IdentityService, cfg config.Config, log *zap.Logger) *InstitutionCredits {
	maxRetries := cfg.Credit.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	maxBalance := cfg.Credit.MaxBalance
	if maxBalance <= 0 {
		maxBalance = math.MaxInt64
	}
	return &InstitutionCredits{
		repo:       repo,
		identity:   identity,
		maxBalance: maxBalance,
		maxRetries: maxRetries,
		timeout:    cfg.Database.StatementTimeout,
		log:        log,
	}
}

// Pool returns the pool balance with its most recent transactions, newest first.
func (c *InstitutionCredits) Pool(ctx context.Context, institutionID uuid.UUID, limit int) (types.InstitutionCreditBalance, []types.InstitutionCreditEntry, error) {
	if _, err := c.identity.GetInstitution(ctx, institutionID); err != nil {
		return types.InstitutionCreditBalance{}, nil, err
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	balance, err := c.repo.GetBalance(ctx, institutionID)
	if err != nil {
		return types.InstitutionCreditBalance{}, nil, err
	}
	entries, err := c.repo.ListEntries(ctx, institutionID, limit)
	if err != nil {
		return types.InstitutionCreditBalance{}, nil, err
	}
	return balance, entries, nil
}

// Balance returns the pool without checking that the institution exists.
func (c *InstitutionCredits) Balance(ctx context.Context, institutionID uuid.UUID) (types.InstitutionCreditBalance, error) {
	return c.repo.GetBalance(ctx, institutionID)
}

// Total is the sum of all institution pools.
func (c *InstitutionCredits) Total(ctx context.Context) (int64, error) {
	return c.repo.Total(ctx)
}

// Adjust applies a pool change and returns the new balance.
func (c *InstitutionCredits) Adjust(ctx context.Context, institutionID uuid.UUID, adj PoolAdjustment) (int64, error) {
	mutation, err := c.mutation(institutionID, adj)
	if err != nil {
		return 0, err
	}
	if _, err := c.identity.GetInstitution(ctx, institutionID); err != nil {
		return 0, err
	}

	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		entry   types.InstitutionCreditEntry
		balance types.InstitutionCreditBalance
	)
	err = retryConflicts(ctx, c.maxRetries, func(int) error {
		var err error
		entry, balance, err = c.repo.Apply(ctx, mutation)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNoChange):
		return 0, validationError("adjustment does not change the balance")
	case errors.Is(err, store.ErrInsufficientFunds):
		return 0, ErrInsufficientBalance
	case errors.Is(err, store.ErrBalanceLimit):
		return 0, ErrLimitExceeded
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrInstitutionNotFound
	default:
		return 0, err
	}

	c.log.Info("institution pool mutation",
		zap.String("institution_id", institutionID.String()),
		zap.Int64("delta", entry.Delta),
		zap.Int64("balance", balance.Balance),
		zap.String("reason", entry.Reason),
		zap.String("actor", entry.Actor),
	)
	return balance.Balance, nil
}

func (c *InstitutionCredits) mutation(institutionID uuid.UUID, adj PoolAdjustment) (types.InstitutionMutation, error) {
	if (adj.Amount == nil) == (adj.SetTo == nil) {
		return types.InstitutionMutation{}, validationError("exactly one of amount and set_to is required")
	}
	reason := strings.TrimSpace(adj.Reason)
	if reason == "" {
		reason = ReasonPoolTopUp
	}
	if len(reason) > maxReasonLength {
		return types.InstitutionMutation{}, validationError("reason must be 1-%d characters", maxReasonLength)
	}
	actor := strings.TrimSpace(adj.Actor)
	if actor == "" {
		return types.InstitutionMutation{}, validationError("actor is required")
	}

	m := types.InstitutionMutation{
		InstitutionID: institutionID,
		SetTo:         adj.SetTo,
		MaxBalance:    c.maxBalance,
		Reason:        reason,
		Actor:         actor,
	}
	if adj.SetTo != nil {
		if *adj.SetTo < 0 {
			return types.InstitutionMutation{}, validationError("set_to must not be negative")
		}
		if *adj.SetTo > c.maxBalance {
			return types.InstitutionMutation{}, ErrLimitExceeded
		}
		return m, nil
	}
	if *adj.Amount == 0 {
		return types.InstitutionMutation{}, validationError("amount must be non-zero")
	}
	if *adj.Amount > c.maxBalance {
		return types.InstitutionMutation{}, ErrLimitExceeded
	}
	m.Delta = *adj.Amount
	return m, nil
}
