package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

const accountColumns = `id, user_id, currency, balance, status, version, created_at, updated_at`

// GetAccount retrieves an account without locking.
func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "accounts"})
	defer span.End()

	account, err := getAccount(ctx, s.db, accountID, false)
	tracing.EndDBSpan(span, err, 1)
	return account, err
}

// ListAccountsByUser enumerates a user's accounts, optionally filtered by
// currency.
func (s *Store) ListAccountsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]*entities.Account, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "accounts"})
	defer span.End()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	args := []interface{}{userID}
	if currency != "" {
		query += ` AND currency = $2`
		args = append(args, currency)
	}
	query += ` ORDER BY created_at`

	var accounts []*entities.Account
	err := s.db.SelectContext(ctx, &accounts, query, args...)
	tracing.EndDBSpan(span, err, int64(len(accounts)))
	if err != nil {
		return nil, domainerrors.InternalError("list accounts", err)
	}
	return accounts, nil
}

// GetAccountForUpdate acquires an exclusive row lock on the account for
// the lifetime of the unit of work.
func (u *unitOfWork) GetAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT FOR UPDATE", Table: "accounts"})
	defer span.End()

	account, err := getAccount(ctx, u.tx, accountID, true)
	tracing.EndDBSpan(span, err, 1)
	return account, err
}

func getAccount(ctx context.Context, q querier, accountID uuid.UUID, forUpdate bool) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var account entities.Account
	err := q.GetContext(ctx, &account, query, accountID)
	if err == sql.ErrNoRows {
		return nil, domainerrors.InvalidAccountError(accountID)
	}
	if err != nil {
		if conflict := translateConflict(err); conflict != err {
			return nil, conflict
		}
		return nil, domainerrors.InternalError("get account", err)
	}
	return &account, nil
}

// CreateAccount inserts a new account row.
func (u *unitOfWork) CreateAccount(ctx context.Context, account *entities.Account) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "accounts"})
	defer span.End()

	if err := account.Validate(); err != nil {
		tracing.EndDBSpan(span, err, 0)
		return domainerrors.ValidationError("account", err.Error())
	}

	query := `
		INSERT INTO accounts (id, user_id, currency, balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := u.tx.ExecContext(ctx, query,
		account.ID, account.UserID, account.Currency, account.Balance,
		account.Status, account.Version, account.CreatedAt, account.UpdatedAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domainerrors.ConcurrentModificationError("account already exists")
		}
		return domainerrors.InternalError("create account", err)
	}
	return nil
}

// UpdateAccountBalance writes the new balance and bumps version. The row
// must already be locked by this unit of work.
func (u *unitOfWork) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, newBalance decimal.Decimal) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "accounts"})
	defer span.End()

	query := `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3
	`
	result, err := u.tx.ExecContext(ctx, query, newBalance, time.Now().UTC(), accountID)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		if conflict := translateConflict(err); conflict != err {
			return conflict
		}
		return domainerrors.InternalError("update account balance", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	if rows == 0 {
		return domainerrors.InvalidAccountError(accountID)
	}
	return nil
}
