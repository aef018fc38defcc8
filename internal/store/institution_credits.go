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

// InstitutionCreditRepository handles persistence for institution credit pools.
type InstitutionCreditRepository struct {
	db *sql.DB
}

func NewInstitutionCreditRepository(db *sql.DB) *InstitutionCreditRepository {
	return &InstitutionCreditRepository{db: db}
}

// GetBalance returns the pool of an institution. A missing pool row reads as zero.
func (r *InstitutionCreditRepository) GetBalance(ctx context.Context, institutionID uuid.UUID) (types.InstitutionCreditBalance, error) {
	const query = `
		SELECT institution_id, balance, version, updated_at
		FROM institution_credits
		WHERE institution_id = $1`
	var balance types.InstitutionCreditBalance
	err := r.db.QueryRowContext(ctx, query, institutionID).Scan(
		&balance.InstitutionID,
		&balance.Balance,
		&balance.Version,
		&balance.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.InstitutionCreditBalance{InstitutionID: institutionID}, nil
	}
	if err != nil {
		return types.InstitutionCreditBalance{}, err
	}
	return balance, nil
}

// Apply changes the pool under a row lock and records the transaction. With
// SetTo the delta is computed from the locked balance.
func (r *InstitutionCreditRepository) Apply(ctx context.Context, m types.InstitutionMutation) (types.InstitutionCreditEntry, types.InstitutionCreditBalance, error) {
	now := time.Now().UTC()
	entry := types.InstitutionCreditEntry{
		ID:            uuid.New(),
		InstitutionID: m.InstitutionID,
		Reason:        m.Reason,
		Actor:         m.Actor,
		SetTo:         m.SetTo,
		CreatedAt:     now,
	}
	balance := types.InstitutionCreditBalance{InstitutionID: m.InstitutionID, UpdatedAt: now}

	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const ensure = `
			INSERT INTO institution_credits (institution_id, balance, version, updated_at)
			VALUES ($1, 0, 0, $2)
			ON CONFLICT (institution_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, ensure, m.InstitutionID, now); err != nil {
			return err
		}

		const lock = `SELECT balance FROM institution_credits WHERE institution_id = $1 FOR UPDATE`
		var current int64
		if err := tx.QueryRowContext(ctx, lock, m.InstitutionID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		delta := m.Delta
		if m.SetTo != nil {
			delta = *m.SetTo - current
		}
		switch {
		case delta == 0:
			return ErrNoChange
		case current+delta < 0:
			return ErrInsufficientFunds
		case delta > 0 && current > m.MaxBalance-delta:
			return ErrBalanceLimit
		}
		entry.Delta = delta

		const update = `
			UPDATE institution_credits
			SET balance = $1,
				version = version + 1,
				updated_at = $2
			WHERE institution_id = $3
			RETURNING balance, version`
		if err := tx.QueryRowContext(ctx, update, current+delta, now, m.InstitutionID).Scan(&balance.Balance, &balance.Version); err != nil {
			return err
		}
		entry.BalanceAfter = balance.Balance

		const insert = `
			INSERT INTO institution_credit_transactions (id, institution_id, delta, balance_after, reason, actor, set_to, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.ExecContext(
			ctx,
			insert,
			entry.ID,
			entry.InstitutionID,
			entry.Delta,
			entry.BalanceAfter,
			entry.Reason,
			entry.Actor,
			nullableInt64(entry.SetTo),
			entry.CreatedAt,
		)
		return err
	})
	if err != nil {
		return types.InstitutionCreditEntry{}, types.InstitutionCreditBalance{}, classifyWrite(err)
	}
	return entry, balance, nil
}

// ListEntries returns the newest pool transactions first. A limit below 1 returns all.
func (r *InstitutionCreditRepository) ListEntries(ctx context.Context, institutionID uuid.UUID, limit int) ([]types.InstitutionCreditEntry, error) {
	query := `
		SELECT id, institution_id, delta, balance_after, reason, actor, set_to, created_at
		FROM institution_credit_transactions
		WHERE institution_id = $1
		ORDER BY created_at DESC, id`
	args := []any{institutionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.InstitutionCreditEntry, 0)
	for rows.Next() {
		var (
			entry types.InstitutionCreditEntry
			setTo sql.NullInt64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.InstitutionID,
			&entry.Delta,
			&entry.BalanceAfter,
			&entry.Reason,
			&entry.Actor,
			&setTo,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if setTo.Valid {
			entry.SetTo = &setTo.Int64
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Total returns the sum of every institution pool.
func (r *InstitutionCreditRepository) Total(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(SUM(balance), 0) FROM institution_credits`
	var total int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func nullableInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}
