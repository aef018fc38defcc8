package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nebulasphere007-cell/MockZen/internal/storage"
	"github.com/nebulasphere007-cell/MockZen/types"
	"go.uber.org/zap"
)

// ObjectWriter is the subset of object storage used for statements.
type ObjectWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// Statement is the exported ledger of one account.
type Statement struct {
	AccountID   uuid.UUID           `json:"account_id"`
	Email       string              `json:"email"`
	Balance     int64               `json:"balance"`
	Version     int64               `json:"version"`
	LedgerSum   int64               `json:"ledger_sum"`
	Entries     []types.LedgerEntry `json:"entries"`
	GeneratedBy string              `json:"generated_by"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// StatementService exports account ledgers to object storage.
type StatementService struct {
	identity *IdentityService
	ledger   *CreditLedger
	repo     LedgerRepository
	objects  ObjectWriter
	now      func() time.Time
	log      *zap.Logger
}

// NewStatementService accepts a nil objects writer; exports then fail with ErrStorageUnavailable.
func NewStatementService(identity *IdentityService, ledger *CreditLedger, repo LedgerRepository, objects ObjectWriter, log *zap.Logger) *StatementService {
	return &StatementService{
		identity: identity,
		ledger:   ledger,
		repo:     repo,
		objects:  objects,
		now:      time.Now,
		log:      log,
	}
}

// Export writes the full ledger of the account and returns the object key.
func (s *StatementService) Export(ctx context.Context, accountID uuid.UUID, actor string) (string, error) {
	if s.objects == nil {
		return "", ErrStorageUnavailable
	}
	account, err := s.identity.FindByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	balance, sum, err := s.ledger.Reconcile(ctx, accountID)
	if err != nil {
		return "", err
	}
	entries, err := s.repo.ListEntries(ctx, accountID, 0)
	if err != nil {
		return "", err
	}
	if sum != balance.Balance {
		s.log.Error("ledger out of balance",
			zap.String("account_id", accountID.String()),
			zap.Int64("balance", balance.Balance),
			zap.Int64("ledger_sum", sum),
		)
	}

	now := s.now().UTC()
	statement := Statement{
		AccountID:   account.ID,
		Email:       account.Email,
		Balance:     balance.Balance,
		Version:     balance.Version,
		LedgerSum:   sum,
		Entries:     entries,
		GeneratedBy: actor,
		GeneratedAt: now,
	}
	data, err := json.MarshalIndent(statement, "", "  ")
	if err != nil {
		return "", err
	}

	key := StatementKey(accountID, now)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	s.log.Info("statement exported", zap.String("account_id", accountID.String()), zap.String("key", key))
	return key, nil
}

// Open returns a previously exported statement of the account.
func (s *StatementService) Open(ctx context.Context, accountID uuid.UUID, name string) (io.ReadCloser, error) {
	if s.objects == nil {
		return nil, ErrStorageUnavailable
	}
	if !strings.HasSuffix(name, ".json") || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return nil, validationError("invalid statement name")
	}
	rc, err := s.objects.Get(ctx, statementPrefix(accountID)+name)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrStatementNotFound
	}
	return rc, err
}

// Bucket names the bucket statements are written to.
func (s *StatementService) Bucket() string {
	if s.objects == nil {
		return ""
	}
	return s.objects.Bucket()
}

func StatementKey(accountID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s%s.json", statementPrefix(accountID), at.Format("20060102T150405.000000000Z"))
}

func statementPrefix(accountID uuid.UUID) string {
	return fmt.Sprintf("statements/%s/", accountID)
}
