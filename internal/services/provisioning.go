package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/config"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

const superAdminName = "Super Admin"

// ProvisioningService performs privileged account creation.
type ProvisioningService struct {
	identity       *IdentityService
	candidateGrant int64
	bootstrap      config.BootstrapConfig
	log            *zap.Logger
}

func NewProvisioningService(identity *IdentityService, cfg config.Config, log *zap.Logger) *ProvisioningService {
	return &ProvisioningService{
		identity:       identity,
		candidateGrant: cfg.Credit.CandidateGrant,
		bootstrap:      cfg.Bootstrap,
		log:            log,
	}
}

// CreateSuperAdmin upserts a super admin. An existing super admin with the
// same email gets its password rotated; created reports which case applied.
func (p *ProvisioningService) CreateSuperAdmin(ctx context.Context, email, password string) (types.Account, bool, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return types.Account{}, false, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return types.Account{}, false, err
	}

	account, err := p.identity.CreateAccount(ctx, NewAccount{
		Email:        normalized,
		Name:         superAdminName,
		PasswordHash: hash,
		Role:         types.RoleSuperAdmin,
	})
	if err == nil {
		p.log.Info("super admin created", zap.String("account_id", account.ID.String()))
		return account, true, nil
	}
	if !errors.Is(err, ErrDuplicateEmail) {
		return types.Account{}, false, err
	}

	existing, err := p.identity.FindByEmail(ctx, normalized)
	if err != nil {
		return types.Account{}, false, err
	}
	if existing.Role != types.RoleSuperAdmin {
		return types.Account{}, false, ErrDuplicateEmail
	}
	if err := p.identity.RotatePassword(ctx, existing.ID, hash); err != nil {
		return types.Account{}, false, err
	}
	existing.PasswordHash = hash
	p.log.Info("super admin password rotated", zap.String("account_id", existing.ID.String()))
	return existing, false, nil
}

// CreateInstitutionAdmin creates an institution admin with a zero balance.
func (p *ProvisioningService) CreateInstitutionAdmin(ctx context.Context, name, email, password string, institutionID *uuid.UUID) (types.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Account{}, validationError("name is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return types.Account{}, err
	}
	account, err := p.identity.CreateAccount(ctx, NewAccount{
		Email:         email,
		Name:          name,
		PasswordHash:  hash,
		Role:          types.RoleInstitutionAdmin,
		InstitutionID: institutionID,
	})
	if err != nil {
		return types.Account{}, err
	}
	p.log.Info("institution admin created", zap.String("account_id", account.ID.String()))
	return account, nil
}

// RegisterCandidate creates a self-registered candidate seeded with the starting grant.
func (p *ProvisioningService) RegisterCandidate(ctx context.Context, name, email, password string) (types.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Account{}, validationError("name is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return types.Account{}, err
	}
	return p.identity.CreateAccount(ctx, NewAccount{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         types.RoleCandidate,
		Grant:        p.candidateGrant,
		GrantReason:  ReasonWelcomeBonus,
	})
}

// AuthorizeBootstrap guards the unauthenticated super-admin path. It must be
// enabled; with a configured secret the presented key must match, otherwise
// it is only open while no super admin exists.
func (p *ProvisioningService) AuthorizeBootstrap(ctx context.Context, presentedKey string) error {
	if !p.bootstrap.Enabled {
		return ErrBootstrapDisabled
	}
	if p.bootstrap.SecretKey != "" {
		if subtle.ConstantTimeCompare([]byte(presentedKey), []byte(p.bootstrap.SecretKey)) != 1 {
			return ErrForbidden
		}
		return nil
	}
	count, err := p.identity.CountByRole(ctx, types.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrBootstrapDisabled
	}
	return nil
}

// Seed upserts the configured super admin, if any.
func (p *ProvisioningService) Seed(ctx context.Context) error {
	if p.bootstrap.SeedEmail == "" || p.bootstrap.SeedPassword == "" {
		return nil
	}
	_, _, err := p.CreateSuperAdmin(ctx, p.bootstrap.SeedEmail, p.bootstrap.SeedPassword)
	return err
}
