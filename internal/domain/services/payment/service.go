// Package payment implements the transfer engine: atomic double-entry
// transfers between accounts, reversals, and transaction reads. Every
// transfer commits balances, journal entries, audit rows, and the
// idempotency record in one unit of work or not at all.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	idempotencysvc "github.com/ledger-service/ledger_service/internal/domain/services/idempotency"
	"github.com/ledger-service/ledger_service/pkg/logger"
	"github.com/ledger-service/ledger_service/pkg/metrics"
	"github.com/ledger-service/ledger_service/pkg/retry"
)

const (
	maxPageLimit      = 100
	defaultPageLimit  = 50
	minReversalReason = 5
)

// TransferParams describes one transfer request.
type TransferParams struct {
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	Amount         entities.Money
	IdempotencyKey string
	ReferenceID    *string
	Description    *string
	RequestHash    string
	Meta           entities.AuditMeta
}

// TransactionPage is one page of an account's history plus the true
// total matching the filter.
type TransactionPage struct {
	Transactions []*entities.Transaction
	TotalCount   int64
	Limit        int
	Offset       int
}

// Service is the transfer engine.
type Service struct {
	store       repositories.LedgerStore
	accounts    *accountsvc.Service
	idempotency *idempotencysvc.Service
	retryPolicy retry.Policy
	logger      *logger.Logger
}

// NewService creates the payment engine. maxRetries bounds retries on
// lock conflicts; 0 disables retrying.
func NewService(store repositories.LedgerStore, accounts *accountsvc.Service, idem *idempotencysvc.Service, maxRetries int, log *logger.Logger) *Service {
	policy := retry.DefaultPolicy(func(err error) bool {
		if domainerrors.IsConcurrentModification(err) {
			metrics.TransferRetriesTotal.Inc()
			return true
		}
		return false
	})
	policy.MaxAttempts = maxRetries
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Service{
		store:       store,
		accounts:    accounts,
		idempotency: idem,
		retryPolicy: policy,
		logger:      log,
	}
}

// Transfer moves funds between two same-currency accounts. A repeated
// idempotency key returns ErrDuplicateTransaction naming the transaction
// the key originally materialized.
func (s *Service) Transfer(ctx context.Context, params TransferParams) (*entities.Transaction, error) {
	if err := idempotencysvc.ValidateKey(params.IdempotencyKey); err != nil {
		return nil, err
	}
	if !params.Amount.IsPositive() {
		return nil, domainerrors.InvalidAmountError("transfer amount must be positive")
	}
	if params.FromAccountID == uuid.Nil || params.ToAccountID == uuid.Nil {
		return nil, domainerrors.ValidationError("account_id", "both accounts are required")
	}
	if params.FromAccountID == params.ToAccountID {
		return nil, domainerrors.ValidationError("to_account_id", "cannot transfer to the same account")
	}

	// Fast path: a key seen before short-circuits without touching any
	// account row.
	record, err := s.idempotency.Check(ctx, params.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.TransactionID != nil {
		return nil, domainerrors.DuplicateTransactionError(*record.TransactionID)
	}

	var tx *entities.Transaction
	err = retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
		var attemptErr error
		tx, attemptErr = s.executeTransfer(ctx, params, entities.TransactionTypeTransfer)
		return attemptErr
	})
	if err != nil {
		if domainerrors.IsDuplicateTransaction(err) {
			return nil, s.resolveDuplicate(ctx, params.IdempotencyKey, err)
		}
		return nil, err
	}

	s.logger.Info("transfer completed",
		"transaction_id", tx.ID,
		"from_account_id", params.FromAccountID,
		"to_account_id", params.ToAccountID,
		"amount", params.Amount.String())
	return tx, nil
}

// executeTransfer runs one attempt of the transfer inside a single unit
// of work. Any error rolls everything back.
func (s *Service) executeTransfer(ctx context.Context, params TransferParams, txType entities.TransactionType) (*entities.Transaction, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	// Locks are always taken in ascending account-id order so two
	// opposing transfers between the same pair cannot deadlock.
	first, second := params.FromAccountID, params.ToAccountID
	if strings.Compare(second.String(), first.String()) < 0 {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*entities.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		account, err := s.accounts.GetActiveForUpdate(ctx, uow, id)
		if err != nil {
			return nil, err
		}
		locked[id] = account
	}
	from := locked[params.FromAccountID]
	to := locked[params.ToAccountID]

	if from.Currency != to.Currency {
		return nil, domainerrors.CurrencyMismatchError(from.Currency, to.Currency)
	}
	if from.Currency != params.Amount.Currency {
		return nil, domainerrors.CurrencyMismatchError(from.Currency, params.Amount.Currency)
	}

	fromBalance := from.BalanceMoney()
	if insufficient, err := fromBalance.LessThan(params.Amount); err != nil {
		return nil, err
	} else if insufficient {
		return nil, domainerrors.InsufficientFundsError(
			fromBalance.Amount.String(), params.Amount.Amount.String())
	}

	fromID, toID := params.FromAccountID, params.ToAccountID
	tx := &entities.Transaction{
		ID:              uuid.New(),
		FromAccountID:   &fromID,
		ToAccountID:     &toID,
		Amount:          params.Amount.Amount,
		Currency:        params.Amount.Currency,
		TransactionType: txType,
		Status:          entities.TransactionStatusPending,
		IdempotencyKey:  params.IdempotencyKey,
		ReferenceID:     params.ReferenceID,
		Description:     params.Description,
		CreatedAt:       time.Now().UTC(),
	}
	if err := uow.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	newFromBalance, err := fromBalance.Sub(params.Amount)
	if err != nil {
		return nil, err
	}
	newToBalance, err := to.BalanceMoney().Add(params.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.ApplyBalanceChange(ctx, uow, from, newFromBalance, tx.ID, params.Meta); err != nil {
		return nil, err
	}
	if err := s.accounts.ApplyBalanceChange(ctx, uow, to, newToBalance, tx.ID, params.Meta); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := []*entities.TransactionEntry{
		{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			AccountID:     from.ID,
			EntryType:     entities.EntryTypeDebit,
			Amount:        params.Amount.Amount,
			Currency:      params.Amount.Currency,
			Sequence:      1,
			CreatedAt:     now,
		},
		{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			AccountID:     to.ID,
			EntryType:     entities.EntryTypeCredit,
			Amount:        params.Amount.Amount,
			Currency:      params.Amount.Currency,
			Sequence:      2,
			CreatedAt:     now,
		},
	}
	for _, entry := range entries {
		if err := uow.CreateEntry(ctx, entry); err != nil {
			return nil, err
		}
	}

	amount := params.Amount.Amount
	for _, audit := range []*entities.AuditLog{
		{
			ID:            uuid.New(),
			TransactionID: &tx.ID,
			AccountID:     &from.ID,
			Action:        entities.AuditActionTransferDebit,
			UserID:        params.Meta.UserID,
			IPAddress:     params.Meta.IPAddress,
			UserAgent:     params.Meta.UserAgent,
			ExtraData:     map[string]any{"amount": amount.String(), "currency": params.Amount.Currency},
			CreatedAt:     now,
		},
		{
			ID:            uuid.New(),
			TransactionID: &tx.ID,
			AccountID:     &to.ID,
			Action:        entities.AuditActionTransferCredit,
			UserID:        params.Meta.UserID,
			IPAddress:     params.Meta.IPAddress,
			UserAgent:     params.Meta.UserAgent,
			ExtraData:     map[string]any{"amount": amount.String(), "currency": params.Amount.Currency},
			CreatedAt:     now,
		},
	} {
		if err := uow.CreateAuditLog(ctx, audit); err != nil {
			return nil, err
		}
	}

	if err := uow.UpdateTransactionStatus(ctx, tx.ID, entities.TransactionStatusCompleted); err != nil {
		return nil, err
	}
	tx.MarkCompleted()

	var requestHash *string
	if params.RequestHash != "" {
		requestHash = &params.RequestHash
	}
	record := &entities.IdempotencyRecord{
		Key:           params.IdempotencyKey,
		TransactionID: &tx.ID,
		RequestHash:   requestHash,
		ResponseData: map[string]any{
			"transaction_id": tx.ID.String(),
			"status":         string(tx.Status),
		},
	}
	if err := s.idempotency.Record(ctx, uow, record); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	// Post-commit: refresh the fast paths. Failures here are invisible to
	// correctness.
	s.idempotency.CacheRecord(ctx, record)
	s.accounts.InvalidateBalance(ctx, from.ID)
	s.accounts.InvalidateBalance(ctx, to.ID)

	return tx, nil
}

// resolveDuplicate makes sure a duplicate error names the winning
// transaction, looking it up when the storage layer could not.
func (s *Service) resolveDuplicate(ctx context.Context, key string, err error) error {
	if details := domainerrors.GetDetails(err); details != nil {
		if _, ok := details["transaction_id"]; ok {
			return err
		}
	}
	winner, lookupErr := s.store.GetTransactionByIdempotencyKey(ctx, key)
	if lookupErr == nil && winner != nil {
		return domainerrors.DuplicateTransactionError(winner.ID)
	}
	return err
}

// Reverse compensates a completed transfer by moving the funds back. The
// compensating transaction is typed REVERSAL and the original is marked
// REVERSED.
func (s *Service) Reverse(ctx context.Context, originalID uuid.UUID, reason, idempotencyKey string, meta entities.AuditMeta) (*entities.Transaction, error) {
	if len(strings.TrimSpace(reason)) < minReversalReason {
		return nil, domainerrors.ValidationError("reason",
			fmt.Sprintf("reversal reason must be at least %d characters", minReversalReason))
	}
	if idempotencyKey == "" {
		idempotencyKey = "reversal:" + originalID.String()
	}

	original, err := s.store.GetTransaction(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, domainerrors.TransactionNotFoundError(originalID)
	}
	if original.Status != entities.TransactionStatusCompleted {
		return nil, domainerrors.NotReversibleError(originalID,
			fmt.Sprintf("transaction %s is %s and cannot be reversed", originalID, original.Status))
	}
	if original.FromAccountID == nil || original.ToAccountID == nil {
		return nil, domainerrors.NotReversibleError(originalID,
			fmt.Sprintf("transaction %s is not a two-sided transfer", originalID))
	}

	amount, err := entities.NewMoney(original.Amount, original.Currency)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Reversal of transaction %s: %s", originalID, strings.TrimSpace(reason))
	reference := "REV-" + originalID.String()

	record, err := s.idempotency.Check(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.TransactionID != nil {
		return nil, domainerrors.DuplicateTransactionError(*record.TransactionID)
	}

	params := TransferParams{
		FromAccountID:  *original.ToAccountID,
		ToAccountID:    *original.FromAccountID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		ReferenceID:    &reference,
		Description:    &description,
		Meta:           meta,
	}

	var reversal *entities.Transaction
	err = retry.Do(ctx, s.retryPolicy, func(ctx context.Context) error {
		var attemptErr error
		reversal, attemptErr = s.executeTransfer(ctx, params, entities.TransactionTypeTransfer)
		return attemptErr
	})
	if err != nil {
		if domainerrors.IsDuplicateTransaction(err) {
			return nil, s.resolveDuplicate(ctx, idempotencyKey, err)
		}
		return nil, err
	}

	// Link the pair in one follow-up unit of work: the compensating
	// movement is retagged REVERSAL and the original retired as REVERSED.
	// The funds are already durably moved either way.
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return reversal, err
	}
	defer uow.Rollback()

	if err := uow.UpdateTransactionType(ctx, reversal.ID, entities.TransactionTypeReversal); err != nil {
		return reversal, err
	}
	if err := uow.UpdateTransactionStatus(ctx, originalID, entities.TransactionStatusReversed); err != nil {
		return reversal, err
	}
	if err := uow.Commit(); err != nil {
		return reversal, err
	}
	reversal.TransactionType = entities.TransactionTypeReversal
	original.Status = entities.TransactionStatusReversed

	s.logger.Info("transaction reversed",
		"original_transaction_id", originalID,
		"reversal_transaction_id", reversal.ID,
		"reason", strings.TrimSpace(reason))
	return reversal, nil
}

// GetTransaction returns a transaction with its journal entries.
func (s *Service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*entities.Transaction, []*entities.TransactionEntry, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, nil, domainerrors.TransactionNotFoundError(transactionID)
	}
	entries, err := s.store.GetEntriesByTransaction(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	return tx, entries, nil
}

// GetAccountTransactions returns one page of the account's history plus
// the true total. The limit clamps to [1, 100].
func (s *Service) GetAccountTransactions(ctx context.Context, accountID uuid.UUID, filter repositories.TransactionFilter) (*TransactionPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Existence check keeps the contract uniform with single reads.
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	transactions, err := s.store.ListAccountTransactions(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountAccountTransactions(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}

	return &TransactionPage{
		Transactions: transactions,
		TotalCount:   total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}, nil
}
