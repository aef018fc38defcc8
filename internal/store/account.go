package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/db"
	"github.com/nebulasphere007-cell/MockZen/types"
)

// AccountFilter narrows account listings.
type AccountFilter struct {
	Search        string
	InstitutionID *uuid.UUID
	Offset        int
	Limit         int
}

// AccountRepository handles persistence for accounts and their balance rows.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, name, role, institution_id, password_hash, created_at, updated_at`

// Create inserts the account together with its credit balance row. A
// positive grant is recorded as the first ledger entry in the same
// transaction so the balance always equals the ledger sum.
func (r *AccountRepository) Create(ctx context.Context, account types.Account, grant int64, grantReason string) (types.Account, error) {
	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const insertAccount = `
			INSERT INTO accounts (id, email, name, role, institution_id, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.ExecContext(
			ctx,
			insertAccount,
			account.ID,
			account.Email,
			account.Name,
			string(account.Role),
			nullableUUID(account.InstitutionID),
			account.PasswordHash,
			account.CreatedAt,
			account.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}

		version := int64(0)
		if grant > 0 {
			version = 1
		}
		const insertBalance = `
			INSERT INTO credit_balances (account_id, balance, version, updated_at)
			VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, insertBalance, account.ID, grant, version, now); err != nil {
			return err
		}

		if grant > 0 {
			const insertEntry = `
				INSERT INTO ledger_entries (id, account_id, delta, balance_after, reason, actor, idempotency_key, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
			if _, err := tx.ExecContext(ctx, insertEntry, uuid.New(), account.ID, grant, grant, grantReason, "system", nil, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// UpdatePassword rotates the credential hash. Role and email are immutable.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	const query = `
		UPDATE accounts
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) CountByRole(ctx context.Context, role types.Role) (int, error) {
	const query = `SELECT COUNT(1) FROM accounts WHERE role = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, query, string(role)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns accounts joined with their balances, newest first.
func (r *AccountRepository) List(ctx context.Context, filter AccountFilter) ([]types.AccountWithBalance, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where, args := accountWhere(filter)

	countQuery := `SELECT COUNT(1) FROM accounts a` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT a.id, a.email, a.name, a.role, a.institution_id, a.password_hash, a.created_at, a.updated_at,
		       COALESCE(b.balance, 0)
		FROM accounts a
		LEFT JOIN credit_balances b ON b.account_id = a.id%s
		ORDER BY a.created_at DESC, a.id
		OFFSET $%d LIMIT $%d`, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, filter.Offset, filter.Limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]types.AccountWithBalance, 0, filter.Limit)
	for rows.Next() {
		var item types.AccountWithBalance
		var role string
		var institutionID uuid.NullUUID
		if err := rows.Scan(
			&item.ID,
			&item.Email,
			&item.Name,
			&role,
			&institutionID,
			&item.PasswordHash,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Balance,
		); err != nil {
			return nil, 0, err
		}
		item.Role = types.Role(role)
		item.InstitutionID = fromNullUUID(institutionID)
		accounts = append(accounts, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

func accountWhere(filter AccountFilter) (string, []any) {
	var clauses []string
	var args []any
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		clauses = append(clauses, fmt.Sprintf("(a.email ILIKE $%d OR a.name ILIKE $%d)", len(args), len(args)))
	}
	if filter.InstitutionID != nil {
		args = append(args, *filter.InstitutionID)
		clauses = append(clauses, fmt.Sprintf("a.institution_id = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanAccount(row *sql.Row) (types.Account, error) {
	var account types.Account
	var role string
	var institutionID uuid.NullUUID
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&role,
		&institutionID,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	account.Role = types.Role(role)
	account.InstitutionID = fromNullUUID(institutionID)
	return account, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func fromNullUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	value := id.UUID
	return &value
}
