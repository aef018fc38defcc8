package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// LoginLimiter throttles failed logins per (email, client).
type LoginLimiter interface {
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	Success(ctx context.Context, email string, ipHash []byte) error
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// LoginService turns credentials into a session.
type LoginService struct {
	identity *IdentityService
	sessions *SessionAuthority
	limiter  LoginLimiter
	log      *zap.Logger
}

// NewLoginService accepts a nil limiter, which disables throttling.
func NewLoginService(identity *IdentityService, sessions *SessionAuthority, limiter LoginLimiter, log *zap.Logger) *LoginService {
	return &LoginService{identity: identity, sessions: sessions, limiter: limiter, log: log}
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token   string
	Account types.Account
	Session types.Session
}

// Login verifies the credentials and issues a session. When roles is
// non-empty the account must hold one of them; a mismatch is reported as
// invalid credentials.
func (s *LoginService) Login(ctx context.Context, email, password, clientIP string, roles ...types.Role) (LoginResult, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" || password == "" {
		return LoginResult{}, validationError("email and password are required")
	}
	ipHash := store.HashIP(clientIP)

	if s.limiter != nil {
		allowed, wait, err := s.limiter.Allow(ctx, key, ipHash)
		if err != nil {
			return LoginResult{}, err
		}
		if !allowed {
			return LoginResult{}, &RetryAfterError{Err: ErrRateLimited, After: wait}
		}
	}

	account, err := s.identity.Authenticate(ctx, key, password)
	if err == nil && len(roles) > 0 && !slices.Contains(roles, account.Role) {
		err = ErrInvalidCredentials
	}
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return LoginResult{}, s.recordFailure(ctx, key, ipHash)
		}
		return LoginResult{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Success(ctx, key, ipHash); err != nil {
			s.log.Warn("login limiter reset failed", zap.Error(err))
		}
	}

	token, session, err := s.sessions.Issue(ctx, account.ID, 0)
	if err != nil {
		return LoginResult{}, err
	}
	s.log.Info("login", zap.String("account_id", account.ID.String()), zap.String("role", string(account.Role)))
	return LoginResult{Token: token, Account: account, Session: session}, nil
}

func (s *LoginService) recordFailure(ctx context.Context, key string, ipHash []byte) error {
	if s.limiter == nil {
		return ErrInvalidCredentials
	}
	blocked, wait, err := s.limiter.Failure(ctx, key, ipHash)
	if err != nil {
		s.log.Warn("login limiter update failed", zap.Error(err))
		return ErrInvalidCredentials
	}
	if blocked {
		s.log.Info("login blocked", zap.Duration("for", wait))
		return &RetryAfterError{Err: ErrRateLimited, After: wait}
	}
	return ErrInvalidCredentials
}
