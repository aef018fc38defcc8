package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/db"
	"github.com/nebulasphere007-cell/MockZen/types"
)

// LedgerRepository handles persistence for credit balances and ledger entries.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (types.CreditBalance, error) {
	const query = `
		SELECT account_id, balance, version, updated_at
		FROM credit_balances
		WHERE account_id = $1`
	var balance types.CreditBalance
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&balance.AccountID,
		&balance.Balance,
		&balance.Version,
		&balance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CreditBalance{}, ErrNotFound
		}
		return types.CreditBalance{}, err
	}
	return balance, nil
}

// Apply commits the balance update and its ledger entry as one transaction.
// The update is conditional on the resulting balance staying within
// [0, MaxBalance] and holds the row lock until commit, so concurrent writers
// to the same account queue behind each other rather than failing.
func (r *LedgerRepository) Apply(ctx context.Context, m types.LedgerMutation) (types.LedgerEntry, types.CreditBalance, error) {
	now := time.Now().UTC()
	entry := types.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      m.AccountID,
		Delta:          m.Delta,
		Reason:         m.Reason,
		Actor:          m.Actor,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      now,
	}
	balance := types.CreditBalance{AccountID: m.AccountID, UpdatedAt: now}

	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const update = `
			UPDATE credit_balances
			SET balance = balance + $1,
				version = version + 1,
				updated_at = $2
			WHERE account_id = $3 AND balance + $1 BETWEEN 0 AND $4
			RETURNING balance, version`
		err := tx.QueryRowContext(ctx, update, m.Delta, now, m.AccountID, m.MaxBalance).Scan(&balance.Balance, &balance.Version)
		if errors.Is(err, sql.ErrNoRows) {
			return rejectionReason(ctx, tx, m)
		}
		if err != nil {
			return err
		}

		// The row lock taken above orders this check after any concurrent
		// writer that used the same key.
		if m.IdempotencyKey != "" {
			const nonceQuery = `
				SELECT EXISTS (
					SELECT 1 FROM ledger_entries
					WHERE account_id = $1 AND idempotency_key = $2 AND created_at >= $3
				)`
			var seen bool
			if err := tx.QueryRowContext(ctx, nonceQuery, m.AccountID, m.IdempotencyKey, m.NonceSince).Scan(&seen); err != nil {
				return err
			}
			if seen {
				return ErrDuplicateKey
			}
		}

		entry.BalanceAfter = balance.Balance
		const insert = `
			INSERT INTO ledger_entries (id, account_id, delta, balance_after, reason, actor, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err = tx.ExecContext(
			ctx,
			insert,
			entry.ID,
			entry.AccountID,
			entry.Delta,
			entry.BalanceAfter,
			entry.Reason,
			entry.Actor,
			nullableString(entry.IdempotencyKey),
			entry.CreatedAt,
		)
		return err
	})
	if err != nil {
		return types.LedgerEntry{}, types.CreditBalance{}, classifyWrite(err)
	}
	return entry, balance, nil
}

// rejectionReason re-reads the balance after a conditional update matched no
// row and reports which bound the mutation would have crossed.
func rejectionReason(ctx context.Context, tx db.DBTX, m types.LedgerMutation) error {
	const query = `SELECT balance FROM credit_balances WHERE account_id = $1`
	var current int64
	if err := tx.QueryRowContext(ctx, query, m.AccountID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if current+m.Delta < 0 {
		return ErrInsufficientFunds
	}
	if current+m.Delta > m.MaxBalance {
		return ErrBalanceLimit
	}
	// The balance moved back into range between the update and the read.
	return ErrVersionConflict
}

// ListEntries returns the newest entries first. A limit below 1 returns all.
func (r *LedgerRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]types.LedgerEntry, error) {
	query := `
		SELECT id, account_id, delta, balance_after, reason, actor, COALESCE(idempotency_key, ''), created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.LedgerEntry, 0)
	for rows.Next() {
		var entry types.LedgerEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Delta,
			&entry.BalanceAfter,
			&entry.Reason,
			&entry.Actor,
			&entry.IdempotencyKey,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumDeltas returns the ledger total for an account.
func (r *LedgerRepository) SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = $1`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CreditTotals returns the sum of all positive ledger deltas and the sum of
// all current balances.
func (r *LedgerRepository) CreditTotals(ctx context.Context) (issued, remaining int64, err error) {
	const query = `
		SELECT
			(SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE delta > 0),
			(SELECT COALESCE(SUM(balance), 0) FROM credit_balances)`
	if err := r.db.QueryRowContext(ctx, query).Scan(&issued, &remaining); err != nil {
		return 0, 0, err
	}
	return issued, remaining, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
