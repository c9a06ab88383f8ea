// Package account implements account lifecycle and balance reads. Balance
// mutation happens only through a payment unit of work; this service
// provides the locked reads and audit writes the engine composes.
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
)

func balanceCacheKey(accountID uuid.UUID) string {
	return "balance:" + accountID.String()
}

// Balance is the cached read model for an account balance. Version lets
// consumers detect staleness against the row.
type Balance struct {
	AccountID uuid.UUID              `json:"account_id"`
	Balance   entities.Money         `json:"balance"`
	Status    entities.AccountStatus `json:"status"`
	Version   int64                  `json:"version"`
	AsOf      time.Time              `json:"as_of"`
}

// Service manages accounts.
type Service struct {
	store      repositories.LedgerStore
	cache      cache.Cache
	balanceTTL time.Duration
	logger     *logger.Logger
}

// NewService creates an account service. balanceTTL bounds how stale a
// cached balance read may be.
func NewService(store repositories.LedgerStore, c cache.Cache, balanceTTL time.Duration, log *logger.Logger) *Service {
	if balanceTTL <= 0 {
		balanceTTL = 5 * time.Minute
	}
	return &Service{store: store, cache: c, balanceTTL: balanceTTL, logger: log}
}

// Create opens a new account with the given opening balance and writes
// the ACCOUNT_CREATED audit row in the same unit of work.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, opening entities.Money, meta entities.AuditMeta) (*entities.Account, error) {
	if userID == uuid.Nil {
		return nil, domainerrors.ValidationError("user_id", "user id is required")
	}

	account := &entities.Account{
		ID:       uuid.New(),
		UserID:   userID,
		Currency: opening.Currency,
		Balance:  opening.Amount,
		Status:   entities.AccountStatusActive,
		Version:  1,
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	newBalance := account.Balance
	if err := uow.CreateAuditLog(ctx, &entities.AuditLog{
		ID:         uuid.New(),
		AccountID:  &account.ID,
		Action:     entities.AuditActionAccountCreated,
		NewBalance: &newBalance,
		UserID:     meta.UserID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		ExtraData:  map[string]any{"currency": account.Currency},
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		"account_id", account.ID, "user_id", userID, "currency", account.Currency)
	return account, nil
}

// Get returns the account by id.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// ListByUser enumerates a user's accounts, optionally filtered by
// currency.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, currency string) ([]*entities.Account, error) {
	return s.store.ListAccountsByUser(ctx, userID, currency)
}

// GetBalance reads the account balance, serving from cache inside the
// staleness bound and refilling on miss.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*Balance, error) {
	key := balanceCacheKey(accountID)

	var cached Balance
	if s.cache.GetJSON(ctx, key, &cached) {
		metrics.BalanceCacheLookupsTotal.WithLabelValues("hit").Inc()
		return &cached, nil
	}
	metrics.BalanceCacheLookupsTotal.WithLabelValues("miss").Inc()

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	balance := &Balance{
		AccountID: account.ID,
		Balance:   account.BalanceMoney(),
		Status:    account.Status,
		Version:   account.Version,
		AsOf:      time.Now().UTC(),
	}
	s.cache.SetJSON(ctx, key, balance, s.balanceTTL)
	return balance, nil
}

// GetActiveForUpdate locks the account row inside the unit of work and
// rejects non-ACTIVE accounts.
func (s *Service) GetActiveForUpdate(ctx context.Context, uow repositories.UnitOfWork, accountID uuid.UUID) (*entities.Account, error) {
	account, err := uow.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, domainerrors.AccountSuspendedError(account.ID, string(account.Status))
	}
	return account, nil
}

// ApplyBalanceChange writes the new balance inside the unit of work and
// stages the BALANCE_UPDATED audit row. The caller must hold the row
// lock via GetActiveForUpdate.
func (s *Service) ApplyBalanceChange(ctx context.Context, uow repositories.UnitOfWork, account *entities.Account, newBalance entities.Money, transactionID uuid.UUID, meta entities.AuditMeta) error {
	if account.Currency != newBalance.Currency {
		return domainerrors.CurrencyMismatchError(account.Currency, newBalance.Currency)
	}
	if newBalance.Amount.IsNegative() {
		return domainerrors.InvalidAmountError(
			fmt.Sprintf("balance for account %s cannot go negative", account.ID))
	}

	if err := uow.UpdateAccountBalance(ctx, account.ID, newBalance.Amount); err != nil {
		return err
	}

	oldBalance := account.Balance
	newAmount := newBalance.Amount
	if err := uow.CreateAuditLog(ctx, &entities.AuditLog{
		ID:            uuid.New(),
		TransactionID: &transactionID,
		AccountID:     &account.ID,
		Action:        entities.AuditActionBalanceUpdated,
		OldBalance:    &oldBalance,
		NewBalance:    &newAmount,
		UserID:        meta.UserID,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return err
	}

	account.Balance = newBalance.Amount
	account.Version++
	return nil
}

// InvalidateBalance drops the cached balance after a committed write.
func (s *Service) InvalidateBalance(ctx context.Context, accountID uuid.UUID) {
	s.cache.Delete(ctx, balanceCacheKey(accountID))
}
