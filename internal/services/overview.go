package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
)

// CreditTotaler aggregates the account ledger.
type CreditTotaler interface {
	CreditTotals(ctx context.Context) (issued, remaining int64, err error)
}

// Overview is the platform-wide summary shown to super admins.
type Overview struct {
	TotalCreditsIssued    int64                 `json:"total_credits_issued"`
	TotalCreditsRemaining int64                 `json:"total_credits_remaining"`
	InstitutionPoolTotal  int64                 `json:"institution_pool_total"`
	Institutions          []InstitutionOverview `json:"institutions"`
}

type InstitutionOverview struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	EmailDomain string    `json:"email_domain"`
	PoolBalance int64     `json:"pool_balance"`
	Members     int       `json:"members"`
}

// OverviewService builds the super-admin overview.
type OverviewService struct {
	totals   CreditTotaler
	pools    *InstitutionCredits
	identity *IdentityService
}

func NewOverviewService(totals CreditTotaler, pools *InstitutionCredits, identity *IdentityService) *OverviewService {
	return &OverviewService{totals: totals, pools: pools, identity: identity}
}

// Summary reports credits ever issued to accounts (sum of positive ledger
// deltas), credits still held by accounts, and per-institution pools.
func (s *OverviewService) Summary(ctx context.Context) (Overview, error) {
	issued, remaining, err := s.totals.CreditTotals(ctx)
	if err != nil {
		return Overview{}, err
	}
	poolTotal, err := s.pools.Total(ctx)
	if err != nil {
		return Overview{}, err
	}
	institutions, err := s.identity.ListInstitutions(ctx)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		TotalCreditsIssued:    issued,
		TotalCreditsRemaining: remaining,
		InstitutionPoolTotal:  poolTotal,
		Institutions:          make([]InstitutionOverview, 0, len(institutions)),
	}
	for _, institution := range institutions {
		pool, err := s.pools.Balance(ctx, institution.ID)
		if err != nil {
			return Overview{}, err
		}
		id := institution.ID
		_, members, err := s.identity.ListAccounts(ctx, store.AccountFilter{InstitutionID: &id, Limit: 1})
		if err != nil {
			return Overview{}, err
		}
		out.Institutions = append(out.Institutions, InstitutionOverview{
			ID:          institution.ID,
			Name:        institution.Name,
			EmailDomain: institution.EmailDomain,
			PoolBalance: pool.Balance,
			Members:     members,
		})
	}
	return out, nil
}
