// Package repositories defines the persistence contracts consumed by the
// domain services. The postgres implementation lives in
// internal/infrastructure/repositories; an in-memory implementation for
// tests and local development lives alongside it.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
)

// TransactionFilter bounds a transaction-history query. Limit is clamped
// to [1, 100] by the payment service; the date range is inclusive on both
// endpoints.
type TransactionFilter struct {
	Limit     int
	Offset    int
	StartDate *time.Time
	EndDate   *time.Time
}

// AuditLogFilter bounds an audit-log listing.
type AuditLogFilter struct {
	AccountID     *uuid.UUID
	TransactionID *uuid.UUID
	Action        *string
	StartDate     *time.Time
	EndDate       *time.Time
	Limit         int
	Offset        int
}

// UnitOfWork is one atomic scope over the ledger store. All writes commit
// or none do; GetAccountForUpdate holds an exclusive row lock until Commit
// or Rollback.
type UnitOfWork interface {
	// GetAccountForUpdate acquires an exclusive row lock on the account,
	// blocking until granted. Missing accounts surface as ErrInvalidAccount.
	GetAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)

	// CreateAccount inserts a new account row.
	CreateAccount(ctx context.Context, account *entities.Account) error

	// UpdateAccountBalance writes the new balance and increments version.
	// The caller must already hold the row lock.
	UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, newBalance decimal.Decimal) error

	// CreateTransaction inserts a transaction row. A unique violation on
	// the idempotency key surfaces as ErrDuplicateTransaction.
	CreateTransaction(ctx context.Context, tx *entities.Transaction) error

	// UpdateTransactionStatus moves a transaction to the given status,
	// stamping completed_at when the status is COMPLETED.
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status entities.TransactionStatus) error

	// UpdateTransactionType rewrites the transaction type; used when a
	// reversal retags the compensating transfer.
	UpdateTransactionType(ctx context.Context, transactionID uuid.UUID, txType entities.TransactionType) error

	// CreateEntry inserts one journal line.
	CreateEntry(ctx context.Context, entry *entities.TransactionEntry) error

	// CreateAuditLog appends an audit row.
	CreateAuditLog(ctx context.Context, log *entities.AuditLog) error

	// CreateIdempotencyRecord inserts the durable idempotency row.
	CreateIdempotencyRecord(ctx context.Context, record *entities.IdempotencyRecord) error

	Commit() error
	Rollback() error
}

// LedgerStore provides durable storage for all ledger entities. Reads run
// outside any unit of work at read-committed semantics.
type LedgerStore interface {
	// Begin opens a unit of work at read-committed or stronger isolation.
	Begin(ctx context.Context) (UnitOfWork, error)

	GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	ListAccountsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]*entities.Account, error)

	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*entities.Transaction, error)
	// GetTransactionByIdempotencyKey returns (nil, nil) when no transaction
	// carries the key.
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error)
	// ListAccountTransactions returns transactions where the account is
	// source or destination, newest first.
	ListAccountTransactions(ctx context.Context, accountID uuid.UUID, filter TransactionFilter) ([]*entities.Transaction, error)
	// CountAccountTransactions returns the true total matching the filter's
	// predicates, ignoring limit and offset.
	CountAccountTransactions(ctx context.Context, accountID uuid.UUID, filter TransactionFilter) (int64, error)

	GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.TransactionEntry, error)

	// GetIdempotencyRecord returns (nil, nil) for missing or expired keys.
	GetIdempotencyRecord(ctx context.Context, key string) (*entities.IdempotencyRecord, error)
	// DeleteExpiredIdempotencyRecords removes rows past their TTL and
	// returns the count removed.
	DeleteExpiredIdempotencyRecords(ctx context.Context) (int64, error)

	ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]*entities.AuditLog, error)
}
