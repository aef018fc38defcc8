package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/config"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

const tokenBytes = 32

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) error
	GetByHash(ctx context.Context, tokenHash []byte) (types.Session, error)
	Revoke(ctx context.Context, tokenHash []byte, at time.Time) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionAuthority issues, validates and revokes opaque server-side sessions.
// Only the SHA-256 of a token is persisted.
type SessionAuthority struct {
	sessions     SessionRepository
	accounts     AccountRepository
	ttl          time.Duration
	singleActive bool
	now          func() time.Time
	log          *zap.Logger
}

func NewSessionAuthority(sessions SessionRepository, accounts AccountRepository, cfg config.SessionConfig, log *zap.Logger) *SessionAuthority {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionAuthority{
		sessions:     sessions,
		accounts:     accounts,
		ttl:          ttl,
		singleActive: cfg.SingleActive,
		now:          time.Now,
		log:          log,
	}
}

// TTL is the default lifetime of issued sessions.
func (a *SessionAuthority) TTL() time.Duration {
	return a.ttl
}

// Issue creates a session for the account and returns the raw token. A
// non-positive ttl uses the configured default.
func (a *SessionAuthority) Issue(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (string, types.Session, error) {
	if ttl <= 0 {
		ttl = a.ttl
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", types.Session{}, err
	}
	hash := sha256.Sum256(raw)

	now := a.now().UTC()
	if a.singleActive {
		revoked, err := a.sessions.RevokeAllForAccount(ctx, accountID, now)
		if err != nil {
			return "", types.Session{}, err
		}
		if revoked > 0 {
			a.log.Debug("revoked prior sessions", zap.String("account_id", accountID.String()), zap.Int64("count", revoked))
		}
	}

	session := types.Session{
		TokenHash: hash[:],
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return "", types.Session{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw), session, nil
}

// Validate resolves a token to its account. Any failure is terminal for the request.
func (a *SessionAuthority) Validate(ctx context.Context, token string) (types.Account, error) {
	hash, ok := hashToken(token)
	if !ok {
		return types.Account{}, ErrInvalidToken
	}

	session, err := a.sessions.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrInvalidToken
		}
		return types.Account{}, err
	}
	if subtle.ConstantTimeCompare(session.TokenHash, hash) != 1 {
		return types.Account{}, ErrInvalidToken
	}
	if session.Revoked() {
		return types.Account{}, ErrRevokedSession
	}
	if !a.now().Before(session.ExpiresAt) {
		return types.Account{}, ErrExpiredSession
	}

	account, err := a.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrInvalidToken
		}
		return types.Account{}, err
	}
	return account, nil
}

// Revoke is idempotent: unknown, malformed or already revoked tokens are a no-op.
func (a *SessionAuthority) Revoke(ctx context.Context, token string) error {
	hash, ok := hashToken(token)
	if !ok {
		return nil
	}
	return a.sessions.Revoke(ctx, hash, a.now().UTC())
}

// RevokeAll ends every live session of the account.
func (a *SessionAuthority) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	_, err := a.sessions.RevokeAllForAccount(ctx, accountID, a.now().UTC())
	return err
}

// Sweep deletes sessions that expired more than retention ago.
func (a *SessionAuthority) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return a.sessions.DeleteExpired(ctx, a.now().UTC().Add(-retention))
}

// RunSweeper calls Sweep every interval until ctx is done.
func (a *SessionAuthority) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.Sweep(ctx, retention)
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("session sweep failed", zap.Error(err))
				}
				continue
			}
			if deleted > 0 {
				a.log.Info("session sweep", zap.Int64("deleted", deleted))
			}
		}
	}
}

func hashToken(token string) ([]byte, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenBytes {
		return nil, false
	}
	hash := sha256.Sum256(raw)
	return hash[:], true
}
