package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

const transactionColumns = `id, from_account_id, to_account_id, amount, currency,
	transaction_type, status, idempotency_key, reference_id, description,
	created_at, completed_at`

// GetTransaction retrieves a transaction by id, or (nil, nil) if absent.
func (s *Store) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*entities.Transaction, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "transactions"})
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	var tx entities.Transaction
	err := s.db.GetContext(ctx, &tx, query, transactionID)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return nil, domainerrors.InternalError("get transaction", err)
	}
	return &tx, nil
}

// GetTransactionByIdempotencyKey returns (nil, nil) when no transaction
// carries the key.
func (s *Store) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "transactions"})
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	var tx entities.Transaction
	err := s.db.GetContext(ctx, &tx, query, key)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return nil, domainerrors.InternalError("get transaction by idempotency key", err)
	}
	return &tx, nil
}

// accountTransactionsPredicate builds the shared WHERE clause for history
// queries; the account may be on either side of the transfer.
func accountTransactionsPredicate(accountID uuid.UUID, filter repositories.TransactionFilter) (string, []interface{}) {
	var sb strings.Builder
	args := []interface{}{accountID}
	sb.WriteString(`(from_account_id = $1 OR to_account_id = $1)`)

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		fmt.Fprintf(&sb, " AND created_at <= $%d", len(args))
	}
	return sb.String(), args
}

// ListAccountTransactions returns the account's transactions newest first.
func (s *Store) ListAccountTransactions(ctx context.Context, accountID uuid.UUID, filter repositories.TransactionFilter) ([]*entities.Transaction, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "transactions"})
	defer span.End()

	where, args := accountTransactionsPredicate(accountID, filter)
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	var txs []*entities.Transaction
	err := s.db.SelectContext(ctx, &txs, query, args...)
	tracing.EndDBSpan(span, err, int64(len(txs)))
	if err != nil {
		return nil, domainerrors.InternalError("list account transactions", err)
	}
	return txs, nil
}

// CountAccountTransactions returns the true total for the filter's
// predicates, independent of pagination.
func (s *Store) CountAccountTransactions(ctx context.Context, accountID uuid.UUID, filter repositories.TransactionFilter) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "transactions"})
	defer span.End()

	where, args := accountTransactionsPredicate(accountID, filter)
	query := `SELECT COUNT(*) FROM transactions WHERE ` + where

	var count int64
	err := s.db.GetContext(ctx, &count, query, args...)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return 0, domainerrors.InternalError("count account transactions", err)
	}
	return count, nil
}

// CreateTransaction inserts a transaction row. A unique violation on the
// idempotency key means a concurrent racer materialized the same key
// first and surfaces as ErrDuplicateTransaction.
func (u *unitOfWork) CreateTransaction(ctx context.Context, tx *entities.Transaction) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "transactions"})
	defer span.End()

	if err := tx.Validate(); err != nil {
		tracing.EndDBSpan(span, err, 0)
		return domainerrors.ValidationError("transaction", err.Error())
	}

	query := `
		INSERT INTO transactions (
			id, from_account_id, to_account_id, amount, currency,
			transaction_type, status, idempotency_key, reference_id,
			description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := u.tx.ExecContext(ctx, query,
		tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount, tx.Currency,
		tx.TransactionType, tx.Status, tx.IdempotencyKey, tx.ReferenceID,
		tx.Description, tx.CreatedAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		if isUniqueViolation(err, "transactions_idempotency_key_key") {
			return &duplicateKeyError{key: tx.IdempotencyKey}
		}
		if isUniqueViolation(err, "") {
			return domainerrors.ConcurrentModificationError("transaction insert conflict")
		}
		if conflict := translateConflict(err); conflict != err {
			return conflict
		}
		return domainerrors.InternalError("create transaction", err)
	}
	return nil
}

// duplicateKeyError carries the racing idempotency key up to the engine,
// which resolves the winning transaction id outside the aborted unit of
// work.
type duplicateKeyError struct {
	key string
}

func (e *duplicateKeyError) Error() string {
	return fmt.Sprintf("transaction with idempotency key %q already exists", e.key)
}

func (e *duplicateKeyError) Is(target error) bool {
	return target == domainerrors.ErrDuplicateTransaction
}

// UpdateTransactionStatus moves a transaction to the given status.
func (u *unitOfWork) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status entities.TransactionStatus) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "transactions"})
	defer span.End()

	var completedAt *time.Time
	if status == entities.TransactionStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	query := `UPDATE transactions SET status = $1, completed_at = COALESCE($2, completed_at) WHERE id = $3`
	result, err := u.tx.ExecContext(ctx, query, status, completedAt, transactionID)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return domainerrors.InternalError("update transaction status", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	if rows == 0 {
		return domainerrors.TransactionNotFoundError(transactionID)
	}
	return nil
}

// UpdateTransactionType rewrites the transaction type.
func (u *unitOfWork) UpdateTransactionType(ctx context.Context, transactionID uuid.UUID, txType entities.TransactionType) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "transactions"})
	defer span.End()

	query := `UPDATE transactions SET transaction_type = $1 WHERE id = $2`
	result, err := u.tx.ExecContext(ctx, query, txType, transactionID)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return domainerrors.InternalError("update transaction type", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	if rows == 0 {
		return domainerrors.TransactionNotFoundError(transactionID)
	}
	return nil
}

// CreateEntry inserts one journal line.
func (u *unitOfWork) CreateEntry(ctx context.Context, entry *entities.TransactionEntry) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "transaction_entries"})
	defer span.End()

	if err := entry.Validate(); err != nil {
		tracing.EndDBSpan(span, err, 0)
		return domainerrors.ValidationError("entry", err.Error())
	}

	query := `
		INSERT INTO transaction_entries (id, transaction_id, account_id, entry_type, amount, currency, sequence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := u.tx.ExecContext(ctx, query,
		entry.ID, entry.TransactionID, entry.AccountID, entry.EntryType,
		entry.Amount, entry.Currency, entry.Sequence, entry.CreatedAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return domainerrors.InternalError("create entry", err)
	}
	return nil
}

// GetEntriesByTransaction returns a transaction's journal lines in
// sequence order, debit first.
func (s *Store) GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.TransactionEntry, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "transaction_entries"})
	defer span.End()

	query := `
		SELECT id, transaction_id, account_id, entry_type, amount, currency, sequence, created_at
		FROM transaction_entries
		WHERE transaction_id = $1
		ORDER BY sequence
	`
	var entries []*entities.TransactionEntry
	err := s.db.SelectContext(ctx, &entries, query, transactionID)
	tracing.EndDBSpan(span, err, int64(len(entries)))
	if err != nil {
		return nil, domainerrors.InternalError("get entries", err)
	}
	return entries, nil
}
