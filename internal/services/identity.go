package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account types.Account, grant int64, grantReason string) (types.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CountByRole(ctx context.Context, role types.Role) (int, error)
	List(ctx context.Context, filter store.AccountFilter) ([]types.AccountWithBalance, int, error)
}

// InstitutionRepository defines persistence operations for institutions.
type InstitutionRepository interface {
	Create(ctx context.Context, institution types.Institution) (types.Institution, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.Institution, error)
	List(ctx context.Context) ([]types.Institution, error)
}

// NewAccount carries the fields needed to create an account.
type NewAccount struct {
	Email         string
	Name          string
	PasswordHash  string
	Role          types.Role
	InstitutionID *uuid.UUID
	// Grant is the starting balance, recorded as the first ledger entry when positive.
	Grant       int64
	GrantReason string
}

// IdentityService encapsulates account and institution use-cases.
type IdentityService struct {
	accounts     AccountRepository
	institutions InstitutionRepository
}

func NewIdentityService(accounts AccountRepository, institutions InstitutionRepository) *IdentityService {
	return &IdentityService{accounts: accounts, institutions: institutions}
}

// CreateAccount stores a new account and its balance row atomically.
func (s *IdentityService) CreateAccount(ctx context.Context, req NewAccount) (types.Account, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return types.Account{}, err
	}
	if !req.Role.Valid() {
		return types.Account{}, validationError("unknown role %q", req.Role)
	}
	if req.PasswordHash == "" {
		return types.Account{}, validationError("password is required")
	}
	if req.Grant < 0 {
		return types.Account{}, validationError("grant must not be negative")
	}
	if req.InstitutionID != nil {
		if _, err := s.GetInstitution(ctx, *req.InstitutionID); err != nil {
			return types.Account{}, err
		}
	}

	account, err := s.accounts.Create(ctx, types.Account{
		Email:         email,
		Name:          strings.TrimSpace(req.Name),
		Role:          req.Role,
		InstitutionID: req.InstitutionID,
		PasswordHash:  req.PasswordHash,
	}, req.Grant, req.GrantReason)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, ErrDuplicateEmail
		}
		return types.Account{}, err
	}
	return account, nil
}

func (s *IdentityService) FindByID(ctx context.Context, id uuid.UUID) (types.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Account{}, ErrAccountNotFound
	}
	return account, err
}

func (s *IdentityService) FindByEmail(ctx context.Context, email string) (types.Account, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return types.Account{}, err
	}
	account, err := s.accounts.GetByEmail(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return types.Account{}, ErrAccountNotFound
	}
	return account, err
}

// Authenticate checks a credential pair. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials after a full bcrypt comparison.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (types.Account, error) {
	account, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrValidation) {
			VerifyPassword(dummyHash, password)
			return types.Account{}, ErrInvalidCredentials
		}
		return types.Account{}, err
	}
	if !VerifyPassword(account.PasswordHash, password) {
		return types.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (s *IdentityService) RotatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	err := s.accounts.UpdatePassword(ctx, id, passwordHash)
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func (s *IdentityService) CountByRole(ctx context.Context, role types.Role) (int, error) {
	return s.accounts.CountByRole(ctx, role)
}

func (s *IdentityService) ListAccounts(ctx context.Context, filter store.AccountFilter) ([]types.AccountWithBalance, int, error) {
	return s.accounts.List(ctx, filter)
}

func (s *IdentityService) CreateInstitution(ctx context.Context, name, emailDomain string) (types.Institution, error) {
	name = strings.TrimSpace(name)
	emailDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(emailDomain), "@"))
	if name == "" || emailDomain == "" {
		return types.Institution{}, validationError("name and email_domain are required")
	}
	if strings.ContainsAny(emailDomain, "@ ") || !strings.Contains(emailDomain, ".") {
		return types.Institution{}, validationError("invalid email domain")
	}

	institution, err := s.institutions.Create(ctx, types.Institution{Name: name, EmailDomain: emailDomain})
	if errors.Is(err, store.ErrConflict) {
		return types.Institution{}, ErrDuplicateDomain
	}
	return institution, err
}

func (s *IdentityService) GetInstitution(ctx context.Context, id uuid.UUID) (types.Institution, error) {
	institution, err := s.institutions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Institution{}, ErrInstitutionNotFound
	}
	return institution, err
}

func (s *IdentityService) ListInstitutions(ctx context.Context) ([]types.Institution, error) {
	return s.institutions.List(ctx)
}

// NormalizeEmail trims and lower-cases an address so uniqueness is case-insensitive.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", validationError("email is required")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", validationError("invalid email")
	}
	return normalized, nil
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", validationError("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", validationError("password too long")
		}
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var bcryptCost = bcrypt.DefaultCost

// dummyHash keeps the unknown-email path as slow as a real comparison.
var dummyHash = func() string {
	hashed, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hashed)
}()
