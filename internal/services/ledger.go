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

const (
	ActorSystem         = "system"
	ReasonWelcomeBonus  = "welcome_bonus"
	ReasonAdminAdjust   = "admin_adjustment"
	ReasonInterview     = "interview"
	defaultHistoryLimit = 100
	conflictRetryAfter  = time.Second
	maxReasonLength     = 200
	maxIdempotencyKey   = 128
)

// LedgerRepository defines persistence operations for balances and ledger entries.
type LedgerRepository interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (types.CreditBalance, error)
	Apply(ctx context.Context, m types.LedgerMutation) (types.LedgerEntry, types.CreditBalance, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]types.LedgerEntry, error)
	SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// LedgerPublisher receives every committed ledger entry.
type LedgerPublisher interface {
	PublishLedgerEntry(ctx context.Context, entry types.LedgerEntry) error
}

// MutationOption customizes a single credit or debit.
type MutationOption func(*types.LedgerMutation)

// WithIdempotencyKey rejects the mutation if key was already used for the
// account within the nonce retention window.
func WithIdempotencyKey(key string) MutationOption {
	return func(m *types.LedgerMutation) {
		m.IdempotencyKey = strings.TrimSpace(key)
	}
}

// CreditLedger applies balance mutations. The bounds check and the write are
// a single conditional update in the repository, so concurrent mutations of
// one account serialize on its row. Only serialization failures are retried.
type CreditLedger struct {
	repo           LedgerRepository
	publisher      LedgerPublisher
	maxBalance     int64
	maxRetries     int
	nonceRetention time.Duration
	timeout        time.Duration
	now            func() time.Time
	log            *zap.Logger
}

func NewCreditLedger(repo LedgerRepository, publisher LedgerPublisher, cfg config.Config, log *zap.Logger) *CreditLedger {
	maxRetries := cfg.Credit.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	maxBalance := cfg.Credit.MaxBalance
	if maxBalance <= 0 {
		maxBalance = math.MaxInt64
	}
	return &CreditLedger{
		repo:           repo,
		publisher:      publisher,
		maxBalance:     maxBalance,
		maxRetries:     maxRetries,
		nonceRetention: cfg.Credit.NonceRetention,
		timeout:        cfg.Database.StatementTimeout,
		now:            time.Now,
		log:            log,
	}
}

func (l *CreditLedger) GetBalance(ctx context.Context, accountID uuid.UUID) (types.CreditBalance, error) {
	balance, err := l.repo.GetBalance(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return types.CreditBalance{}, ErrAccountNotFound
	}
	return balance, err
}

// History returns the balance with its most recent entries, newest first.
// A limit below 1 uses the default page size.
func (l *CreditLedger) History(ctx context.Context, accountID uuid.UUID, limit int) (types.CreditBalance, []types.LedgerEntry, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	balance, err := l.GetBalance(ctx, accountID)
	if err != nil {
		return types.CreditBalance{}, nil, err
	}
	entries, err := l.repo.ListEntries(ctx, accountID, limit)
	if err != nil {
		return types.CreditBalance{}, nil, err
	}
	return balance, entries, nil
}

// Reconcile returns the cached balance alongside the ledger sum.
func (l *CreditLedger) Reconcile(ctx context.Context, accountID uuid.UUID) (types.CreditBalance, int64, error) {
	balance, err := l.GetBalance(ctx, accountID)
	if err != nil {
		return types.CreditBalance{}, 0, err
	}
	sum, err := l.repo.SumDeltas(ctx, accountID)
	if err != nil {
		return types.CreditBalance{}, 0, err
	}
	return balance, sum, nil
}

// Credit adds amount to the account and returns the new balance.
func (l *CreditLedger) Credit(ctx context.Context, accountID uuid.UUID, amount int64, reason, actor string, opts ...MutationOption) (int64, error) {
	if amount <= 0 {
		return 0, validationError("amount must be positive")
	}
	return l.apply(ctx, accountID, amount, reason, actor, opts)
}

// Debit removes amount from the account. The balance check and the write are
// one atomic unit; on ErrInsufficientBalance nothing is written.
func (l *CreditLedger) Debit(ctx context.Context, accountID uuid.UUID, amount int64, reason, actor string, opts ...MutationOption) (int64, error) {
	if amount <= 0 {
		return 0, validationError("amount must be positive")
	}
	return l.apply(ctx, accountID, -amount, reason, actor, opts)
}

// ConsumeInterview charges the cost of an interview of the given length to the candidate.
func (l *CreditLedger) ConsumeInterview(ctx context.Context, accountID uuid.UUID, minutes int, idempotencyKey string) (int64, int64, error) {
	cost, err := InterviewCost(minutes)
	if err != nil {
		return 0, 0, err
	}
	balance, err := l.Debit(ctx, accountID, cost, ReasonInterview, accountID.String(), WithIdempotencyKey(idempotencyKey))
	if err != nil {
		return 0, 0, err
	}
	return cost, balance, nil
}

// InterviewCost is one credit per started 15 minutes.
func InterviewCost(minutes int) (int64, error) {
	if minutes <= 0 {
		return 0, validationError("duration must be positive")
	}
	return int64((minutes + 14) / 15), nil
}

func (l *CreditLedger) apply(ctx context.Context, accountID uuid.UUID, delta int64, reason, actor string, opts []MutationOption) (int64, error) {
	reason = strings.TrimSpace(reason)
	actor = strings.TrimSpace(actor)
	if reason == "" || len(reason) > maxReasonLength {
		return 0, validationError("reason must be 1-%d characters", maxReasonLength)
	}
	if actor == "" {
		return 0, validationError("actor is required")
	}

	if delta > l.maxBalance {
		return 0, ErrLimitExceeded
	}

	mutation := types.LedgerMutation{
		AccountID:  accountID,
		Delta:      delta,
		MaxBalance: l.maxBalance,
		Reason:     reason,
		Actor:      actor,
	}
	for _, opt := range opts {
		opt(&mutation)
	}
	if len(mutation.IdempotencyKey) > maxIdempotencyKey {
		return 0, validationError("idempotency key too long")
	}
	if mutation.IdempotencyKey != "" {
		mutation.NonceSince = l.now().UTC().Add(-l.nonceRetention)
	}

	// The commit must not depend on the client staying connected.
	ctx = context.WithoutCancel(ctx)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var (
		entry   types.LedgerEntry
		balance types.CreditBalance
	)
	err := retryConflicts(ctx, l.maxRetries, func(attempt int) error {
		var err error
		entry, balance, err = l.repo.Apply(ctx, mutation)
		if errors.Is(err, store.ErrVersionConflict) {
			l.log.Debug("ledger serialization conflict",
				zap.String("account_id", accountID.String()),
				zap.Int("attempt", attempt),
			)
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrInsufficientFunds):
		return 0, ErrInsufficientBalance
	case errors.Is(err, store.ErrBalanceLimit):
		return 0, ErrLimitExceeded
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrAccountNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return 0, ErrDuplicateRequest
	default:
		return 0, err
	}

	l.log.Info("ledger mutation",
		zap.String("account_id", accountID.String()),
		zap.Int64("delta", delta),
		zap.Int64("balance", balance.Balance),
		zap.String("reason", reason),
		zap.String("actor", actor),
	)
	l.publish(ctx, entry)
	return balance.Balance, nil
}

func (l *CreditLedger) publish(ctx context.Context, entry types.LedgerEntry) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishLedgerEntry(ctx, entry); err != nil {
		l.log.Warn("ledger event publish failed",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}
}
