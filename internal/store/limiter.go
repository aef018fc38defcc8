package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"time"
)

// LoginLimiter is a Postgres-backed sliding window with temporary lockout,
// keyed by (email, hashed client ip).
type LoginLimiter struct {
	db       *sql.DB
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

func NewLoginLimiter(db *sql.DB, window time.Duration, maxFails int, blockFor time.Duration) *LoginLimiter {
	return &LoginLimiter{db: db, window: window, maxFails: maxFails, blockFor: blockFor}
}

// HashIP returns a stable hash so raw addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether a login attempt is currently permitted and, if not, for how long it is blocked.
func (l *LoginLimiter) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const query = `SELECT blocked_until FROM auth_limiter WHERE email = $1 AND ip_hash = $2`
	var blockedUntil time.Time
	err := l.db.QueryRowContext(ctx, query, email, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if remaining := time.Until(blockedUntil); remaining > 0 {
			return false, remaining, nil
		}
		return true, 0, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets the counters for (email, ip).
func (l *LoginLimiter) Success(ctx context.Context, email string, ipHash []byte) error {
	const query = `
		INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
		VALUES ($1, $2, 0, 'epoch', NOW())
		ON CONFLICT (email, ip_hash)
		DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = NOW()`
	_, err := l.db.ExecContext(ctx, query, email, ipHash)
	return err
}

// Failure records a failed attempt and blocks the pair once the threshold is reached.
func (l *LoginLimiter) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const query = `
		INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
		VALUES ($1, $2, 1, 'epoch', NOW())
		ON CONFLICT (email, ip_hash) DO UPDATE
		SET fail_count = CASE
				WHEN NOW() - auth_limiter.updated_at > $3 * INTERVAL '1 second' THEN 1
				ELSE auth_limiter.fail_count + 1
			END,
			updated_at = NOW()
		RETURNING fail_count`
	var fails int
	if err := l.db.QueryRowContext(ctx, query, email, ipHash, int64(l.window/time.Second)).Scan(&fails); err != nil {
		return false, 0, err
	}
	if l.maxFails < 1 || fails < l.maxFails {
		return false, 0, nil
	}

	// Blocking starts a fresh count so the first failure after expiry does not re-block.
	const block = `UPDATE auth_limiter SET blocked_until = $3, fail_count = 0 WHERE email = $1 AND ip_hash = $2`
	if _, err := l.db.ExecContext(ctx, block, email, ipHash, time.Now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
