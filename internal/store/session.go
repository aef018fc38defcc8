package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/types"
)

// SessionRepository handles persistence for server-side sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) error {
	const query = `
		INSERT INTO sessions (token_hash, account_id, issued_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, NULL)`
	_, err := r.db.ExecContext(ctx, query, session.TokenHash, session.AccountID, session.IssuedAt, session.ExpiresAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *SessionRepository) GetByHash(ctx context.Context, tokenHash []byte) (types.Session, error) {
	const query = `
		SELECT token_hash, account_id, issued_at, expires_at, revoked_at
		FROM sessions
		WHERE token_hash = $1`
	var session types.Session
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.TokenHash,
		&session.AccountID,
		&session.IssuedAt,
		&session.ExpiresAt,
		&revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		session.RevokedAt = &at
	}
	return session, nil
}

// Revoke marks a session revoked. Unknown or already revoked tokens are left untouched.
func (r *SessionRepository) Revoke(ctx context.Context, tokenHash []byte, at time.Time) error {
	const query = `UPDATE sessions SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, at, tokenHash)
	return err
}

// RevokeAllForAccount revokes every live session of the account.
func (r *SessionRepository) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, error) {
	const query = `UPDATE sessions SET revoked_at = $1 WHERE account_id = $2 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, accountID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes sessions that expired before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
