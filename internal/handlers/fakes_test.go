package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"github.com/nebulasphere007-cell/MockZen/types"
)

type memState struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]types.Account
	balances     map[uuid.UUID]types.CreditBalance
	entries      map[uuid.UUID][]types.LedgerEntry
	institutions map[uuid.UUID]types.Institution
	sessions     map[string]types.Session
	pools        map[uuid.UUID]types.InstitutionCreditBalance
	poolEntries  map[uuid.UUID][]types.InstitutionCreditEntry
}

func newMemState() *memState {
	return &memState{
		accounts:     make(map[uuid.UUID]types.Account),
		balances:     make(map[uuid.UUID]types.CreditBalance),
		entries:      make(map[uuid.UUID][]types.LedgerEntry),
		institutions: make(map[uuid.UUID]types.Institution),
		sessions:     make(map[string]types.Session),
		pools:        make(map[uuid.UUID]types.InstitutionCreditBalance),
		poolEntries:  make(map[uuid.UUID][]types.InstitutionCreditEntry),
	}
}

type memAccounts struct{ s *memState }

var _ services.AccountRepository = (*memAccounts)(nil)

func (m *memAccounts) Create(_ context.Context, account types.Account, grant int64, reason string) (types.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return types.Account{}, store.ErrConflict
		}
	}
	account.ID = uuid.New()
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	m.s.accounts[account.ID] = account
	balance := types.CreditBalance{AccountID: account.ID, Balance: grant}
	if grant > 0 {
		balance.Version = 1
		m.s.entries[account.ID] = []types.LedgerEntry{{ID: uuid.New(), AccountID: account.ID, Delta: grant, BalanceAfter: grant, Reason: reason, Actor: services.ActorSystem}}
	}
	m.s.balances[account.ID] = balance
	return account, nil
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (types.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	account, ok := m.s.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (types.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, account := range m.s.accounts {
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (m *memAccounts) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	account, ok := m.s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = hash
	m.s.accounts[id] = account
	return nil
}

func (m *memAccounts) CountByRole(_ context.Context, role types.Role) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	total := 0
	for _, account := range m.s.accounts {
		if account.Role == role {
			total++
		}
	}
	return total, nil
}

func (m *memAccounts) List(_ context.Context, filter store.AccountFilter) ([]types.AccountWithBalance, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	items := []types.AccountWithBalance{}
	for _, account := range m.s.accounts {
		if filter.InstitutionID != nil && (account.InstitutionID == nil || *account.InstitutionID != *filter.InstitutionID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(account.Email, filter.Search) {
			continue
		}
		items = append(items, types.AccountWithBalance{Account: account, Balance: m.s.balances[account.ID].Balance})
	}
	return items, len(items), nil
}

type memInstitutions struct{ s *memState }

var _ services.InstitutionRepository = (*memInstitutions)(nil)

func (m *memInstitutions) Create(_ context.Context, institution types.Institution) (types.Institution, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.institutions {
		if existing.EmailDomain == institution.EmailDomain {
			return types.Institution{}, store.ErrConflict
		}
	}
	institution.ID = uuid.New()
	m.s.institutions[institution.ID] = institution
	return institution, nil
}

func (m *memInstitutions) GetByID(_ context.Context, id uuid.UUID) (types.Institution, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	institution, ok := m.s.institutions[id]
	if !ok {
		return types.Institution{}, store.ErrNotFound
	}
	return institution, nil
}

func (m *memInstitutions) List(_ context.Context) ([]types.Institution, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	items := []types.Institution{}
	for _, institution := range m.s.institutions {
		items = append(items, institution)
	}
	return items, nil
}

type memLedger struct{ s *memState }

var _ services.LedgerRepository = (*memLedger)(nil)

func (m *memLedger) GetBalance(_ context.Context, id uuid.UUID) (types.CreditBalance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	balance, ok := m.s.balances[id]
	if !ok {
		return types.CreditBalance{}, store.ErrNotFound
	}
	return balance, nil
}

func (m *memLedger) Apply(_ context.Context, mut types.LedgerMutation) (types.LedgerEntry, types.CreditBalance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	balance, ok := m.s.balances[mut.AccountID]
	switch {
	case !ok:
		return types.LedgerEntry{}, types.CreditBalance{}, store.ErrNotFound
	case balance.Balance+mut.Delta < 0:
		return types.LedgerEntry{}, types.CreditBalance{}, store.ErrInsufficientFunds
	case balance.Balance > mut.MaxBalance-mut.Delta:
		return types.LedgerEntry{}, types.CreditBalance{}, store.ErrBalanceLimit
	}
	if mut.IdempotencyKey != "" {
		for _, entry := range m.s.entries[mut.AccountID] {
			if entry.IdempotencyKey == mut.IdempotencyKey {
				return types.LedgerEntry{}, types.CreditBalance{}, store.ErrDuplicateKey
			}
		}
	}
	balance.Balance += mut.Delta
	balance.Version++
	m.s.balances[mut.AccountID] = balance
	entry := types.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      mut.AccountID,
		Delta:          mut.Delta,
		BalanceAfter:   balance.Balance,
		Reason:         mut.Reason,
		Actor:          mut.Actor,
		IdempotencyKey: mut.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	m.s.entries[mut.AccountID] = append(m.s.entries[mut.AccountID], entry)
	return entry, balance, nil
}

func (m *memLedger) CreditTotals(_ context.Context) (int64, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var issued, remaining int64
	for _, entries := range m.s.entries {
		for _, entry := range entries {
			if entry.Delta > 0 {
				issued += entry.Delta
			}
		}
	}
	for _, balance := range m.s.balances {
		remaining += balance.Balance
	}
	return issued, remaining, nil
}

type memPools struct{ s *memState }

var _ services.InstitutionCreditRepository = (*memPools)(nil)

func (m *memPools) GetBalance(_ context.Context, id uuid.UUID) (types.InstitutionCreditBalance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	balance := m.s.pools[id]
	balance.InstitutionID = id
	return balance, nil
}

func (m *memPools) Apply(_ context.Context, mut types.InstitutionMutation) (types.InstitutionCreditEntry, types.InstitutionCreditBalance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.institutions[mut.InstitutionID]; !ok {
		return types.InstitutionCreditEntry{}, types.InstitutionCreditBalance{}, store.ErrNotFound
	}
	balance := m.s.pools[mut.InstitutionID]
	balance.InstitutionID = mut.InstitutionID
	delta := mut.Delta
	if mut.SetTo != nil {
		delta = *mut.SetTo - balance.Balance
	}
	switch {
	case delta == 0:
		return types.InstitutionCreditEntry{}, types.InstitutionCreditBalance{}, store.ErrNoChange
	case balance.Balance+delta < 0:
		return types.InstitutionCreditEntry{}, types.InstitutionCreditBalance{}, store.ErrInsufficientFunds
	case delta > 0 && balance.Balance > mut.MaxBalance-delta:
		return types.InstitutionCreditEntry{}, types.InstitutionCreditBalance{}, store.ErrBalanceLimit
	}
	balance.Balance += delta
	balance.Version++
	m.s.pools[mut.InstitutionID] = balance
	entry := types.InstitutionCreditEntry{
		ID:            uuid.New(),
		InstitutionID: mut.InstitutionID,
		Delta:         delta,
		BalanceAfter:  balance.Balance,
		Reason:        mut.Reason,
		Actor:         mut.Actor,
		SetTo:         mut.SetTo,
		CreatedAt:     time.Now().UTC(),
	}
	m.s.poolEntries[mut.InstitutionID] = append(m.s.poolEntries[mut.InstitutionID], entry)
	return entry, balance, nil
}

func (m *memPools) ListEntries(_ context.Context, id uuid.UUID, limit int) ([]types.InstitutionCreditEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	entries := m.s.poolEntries[id]
	out := []types.InstitutionCreditEntry{}
	for i := len(entries) - 1; i >= 0 && (limit < 1 || len(out) < limit); i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *memPools) Total(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var total int64
	for _, pool := range m.s.pools {
		total += pool.Balance
	}
	return total, nil
}

func (m *memLedger) ListEntries(_ context.Context, id uuid.UUID, limit int) ([]types.LedgerEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	entries := m.s.entries[id]
	out := []types.LedgerEntry{}
	for i := len(entries) - 1; i >= 0 && (limit < 1 || len(out) < limit); i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *memLedger) SumDeltas(_ context.Context, id uuid.UUID) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var total int64
	for _, entry := range m.s.entries[id] {
		total += entry.Delta
	}
	return total, nil
}

type memSessions struct{ s *memState }

var _ services.SessionRepository = (*memSessions)(nil)

func (m *memSessions) Create(_ context.Context, session types.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.sessions[string(session.TokenHash)] = session
	return nil
}

func (m *memSessions) GetByHash(_ context.Context, hash []byte) (types.Session, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	session, ok := m.s.sessions[string(hash)]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (m *memSessions) Revoke(_ context.Context, hash []byte, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	session, ok := m.s.sessions[string(hash)]
	if ok && session.RevokedAt == nil {
		session.RevokedAt = &at
		m.s.sessions[string(hash)] = session
	}
	return nil
}

func (m *memSessions) RevokeAllForAccount(_ context.Context, id uuid.UUID, at time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for key, session := range m.s.sessions {
		if session.AccountID == id && session.RevokedAt == nil {
			session.RevokedAt = &at
			m.s.sessions[key] = session
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for key, session := range m.s.sessions {
		if session.ExpiresAt.Before(before) {
			delete(m.s.sessions, key)
			n++
		}
	}
	return n, nil
}
