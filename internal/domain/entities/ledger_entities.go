package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// Validate checks if the account status is valid.
func (s AccountStatus) Validate() error {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusClosed:
		return nil
	default:
		return fmt.Errorf("invalid account status: %s", s)
	}
}

// TransactionType represents the type of a ledger transaction.
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeReversal   TransactionType = "REVERSAL"
)

// Validate checks if the transaction type is valid.
func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypeRefund, TransactionTypeReversal:
		return nil
	default:
		return fmt.Errorf("invalid transaction type: %s", t)
	}
}

// TransactionStatus represents the status of a ledger transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// Validate checks if the transaction status is valid.
func (s TransactionStatus) Validate() error {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusReversed:
		return nil
	default:
		return fmt.Errorf("invalid transaction status: %s", s)
	}
}

// EntryType represents debit or credit on a journal line.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// Validate checks if the entry type is valid.
func (e EntryType) Validate() error {
	switch e {
	case EntryTypeDebit, EntryTypeCredit:
		return nil
	default:
		return fmt.Errorf("invalid entry type: %s", e)
	}
}

// Account holds a user's balance in one currency. The balance is mutated
// only inside a ledger unit of work while the row is exclusively locked;
// version increments on every balance write so read-only consumers can
// detect stale caches.
type Account struct {
	ID        uuid.UUID       `json:"account_id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Currency  string          `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Status    AccountStatus   `json:"status" db:"status"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate validates the account.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if a.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if len(a.Currency) != 3 {
		return fmt.Errorf("invalid currency: %s", a.Currency)
	}
	if err := a.Status.Validate(); err != nil {
		return err
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("account balance cannot be negative")
	}
	return nil
}

// BalanceMoney returns the balance as Money in the account currency.
func (a *Account) BalanceMoney() Money {
	return Money{Amount: a.Balance, Currency: a.Currency}
}

// IsActive reports whether the account accepts balance mutations.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Transaction represents a monetary event. A TRANSFER moves funds between
// exactly two accounts of the same currency and is uniquely keyed by its
// idempotency key.
type Transaction struct {
	ID              uuid.UUID         `json:"transaction_id" db:"id"`
	FromAccountID   *uuid.UUID        `json:"from_account_id,omitempty" db:"from_account_id"`
	ToAccountID     *uuid.UUID        `json:"to_account_id,omitempty" db:"to_account_id"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Currency        string            `json:"currency" db:"currency"`
	TransactionType TransactionType   `json:"transaction_type" db:"transaction_type"`
	Status          TransactionStatus `json:"status" db:"status"`
	IdempotencyKey  string            `json:"idempotency_key" db:"idempotency_key"`
	ReferenceID     *string           `json:"reference_id,omitempty" db:"reference_id"`
	Description     *string           `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate validates the transaction.
func (t *Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if err := t.TransactionType.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if t.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive")
	}
	if t.TransactionType == TransactionTypeTransfer || t.TransactionType == TransactionTypeReversal {
		if t.FromAccountID == nil || t.ToAccountID == nil {
			return fmt.Errorf("%s requires both accounts", t.TransactionType)
		}
	}
	return nil
}

// AmountMoney returns the amount as Money.
func (t *Transaction) AmountMoney() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

// MarkCompleted moves the transaction to COMPLETED and stamps completion.
func (t *Transaction) MarkCompleted() {
	now := time.Now().UTC()
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
}

// MarkFailed moves the transaction to FAILED.
func (t *Transaction) MarkFailed() {
	t.Status = TransactionStatusFailed
}

// TransactionEntry is one journal line. For any completed transaction the
// summed DEBIT amount equals the summed CREDIT amount per currency.
// Sequence orders the lines within their transaction, debit first.
type TransactionEntry struct {
	ID            uuid.UUID       `json:"entry_id" db:"id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id" db:"account_id"`
	EntryType     EntryType       `json:"entry_type" db:"entry_type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Sequence      int             `json:"sequence" db:"sequence"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate validates the entry.
func (e *TransactionEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}
	if e.TransactionID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if e.AccountID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}
	if err := e.EntryType.Validate(); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("entry amount must be positive")
	}
	if len(e.Currency) != 3 {
		return fmt.Errorf("invalid currency: %s", e.Currency)
	}
	if e.Sequence <= 0 {
		return fmt.Errorf("entry sequence must be positive")
	}
	return nil
}

// IsDebit reports whether this is a debit line.
func (e *TransactionEntry) IsDebit() bool {
	return e.EntryType == EntryTypeDebit
}

// IsCredit reports whether this is a credit line.
func (e *TransactionEntry) IsCredit() bool {
	return e.EntryType == EntryTypeCredit
}

// Audit action codes written by the services.
const (
	AuditActionAccountCreated = "ACCOUNT_CREATED"
	AuditActionBalanceUpdated = "BALANCE_UPDATED"
	AuditActionTransferDebit  = "TRANSFER_DEBIT"
	AuditActionTransferCredit = "TRANSFER_CREDIT"
)

// AuditLog is an append-only record of a state change. Rows are never
// updated.
type AuditLog struct {
	ID            uuid.UUID        `json:"log_id" db:"id"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty" db:"transaction_id"`
	AccountID     *uuid.UUID       `json:"account_id,omitempty" db:"account_id"`
	Action        string           `json:"action" db:"action"`
	OldBalance    *decimal.Decimal `json:"old_balance,omitempty" db:"old_balance"`
	NewBalance    *decimal.Decimal `json:"new_balance,omitempty" db:"new_balance"`
	UserID        *uuid.UUID       `json:"user_id,omitempty" db:"user_id"`
	IPAddress     *string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string          `json:"user_agent,omitempty" db:"user_agent"`
	ExtraData     map[string]any   `json:"extra_data,omitempty" db:"extra_data"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// IdempotencyRecord is the durable half of the two-tier idempotency store.
// The row is authoritative; the cache is a read accelerator.
type IdempotencyRecord struct {
	Key           string         `json:"idempotency_key" db:"idempotency_key"`
	TransactionID *uuid.UUID     `json:"transaction_id,omitempty" db:"transaction_id"`
	RequestHash   *string        `json:"request_hash,omitempty" db:"request_hash"`
	ResponseData  map[string]any `json:"response_data" db:"response_data"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the record has passed its TTL at the given time.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// AuditMeta carries actor metadata into audit rows.
type AuditMeta struct {
	UserID    *uuid.UUID
	IPAddress *string
	UserAgent *string
}

// ErrorResponse is the wire shape of an API error.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
