// Package errors provides the standardized error taxonomy for the ledger
// domain. Services return these errors unchanged; the API layer maps them
// to transport status codes in exactly one place.
package errors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel error kinds. Business failures roll back the enclosing unit of
// work and propagate as one of these.
var (
	// ErrInvalidAmount indicates a zero, negative, or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNegativeResult indicates arithmetic that would drive an amount
	// below zero.
	ErrNegativeResult = errors.New("negative result")

	// ErrInvalidAccount indicates an unknown account id.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrAccountSuspended indicates a locked read hit a non-ACTIVE account.
	ErrAccountSuspended = errors.New("account suspended")

	// ErrCurrencyMismatch indicates two currencies that must match do not.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInsufficientFunds indicates the source balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates an idempotency key that already
	// materialized a transaction.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrNotReversible indicates a transaction whose state does not admit
	// a reversal.
	ErrNotReversible = errors.New("transaction not reversible")

	// ErrConcurrentModification indicates a unique-constraint or lock
	// conflict that survived the retry budget.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrRateLimit indicates the request was rejected by the rate limiter.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates malformed or missing request input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an infrastructure failure. Never partially
	// committed; logged and surfaced as a generic internal error.
	ErrInternal = errors.New("internal error")
)

// DomainError carries a stable code and optional details alongside the
// sentinel kind.
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel kind through the wrapper.
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails attaches details to the error.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// InvalidAmountError creates an invalid amount error.
func InvalidAmountError(message string) *DomainError {
	return &DomainError{Err: ErrInvalidAmount, Code: "INVALID_AMOUNT", Message: message}
}

// NegativeResultError creates an error for arithmetic driving an amount
// below zero.
func NegativeResultError(message string) *DomainError {
	return &DomainError{Err: ErrNegativeResult, Code: "NEGATIVE_RESULT", Message: message}
}

// InvalidAccountError creates an unknown-account error.
func InvalidAccountError(accountID uuid.UUID) *DomainError {
	return &DomainError{
		Err:     ErrInvalidAccount,
		Code:    "INVALID_ACCOUNT",
		Message: fmt.Sprintf("account %s not found", accountID),
		Details: map[string]interface{}{"account_id": accountID.String()},
	}
}

// TransactionNotFoundError creates an error for an unknown transaction id.
// The taxonomy folds missing transactions into the invalid-account kind,
// matching the engine's external contract.
func TransactionNotFoundError(transactionID uuid.UUID) *DomainError {
	return &DomainError{
		Err:     ErrInvalidAccount,
		Code:    "TRANSACTION_NOT_FOUND",
		Message: fmt.Sprintf("transaction %s not found", transactionID),
		Details: map[string]interface{}{"transaction_id": transactionID.String()},
	}
}

// AccountSuspendedError creates a suspended-account error.
func AccountSuspendedError(accountID uuid.UUID, status string) *DomainError {
	return &DomainError{
		Err:     ErrAccountSuspended,
		Code:    "ACCOUNT_SUSPENDED",
		Message: fmt.Sprintf("account %s is %s", accountID, status),
		Details: map[string]interface{}{"account_id": accountID.String(), "status": status},
	}
}

// CurrencyMismatchError creates a currency mismatch error.
func CurrencyMismatchError(want, got string) *DomainError {
	return &DomainError{
		Err:     ErrCurrencyMismatch,
		Code:    "CURRENCY_MISMATCH",
		Message: fmt.Sprintf("currency mismatch: %s != %s", want, got),
		Details: map[string]interface{}{"expected": want, "actual": got},
	}
}

// InsufficientFundsError creates an insufficient funds error.
func InsufficientFundsError(balance, required string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: fmt.Sprintf("insufficient funds: balance=%s, required=%s", balance, required),
		Details: map[string]interface{}{"balance": balance, "required": required},
	}
}

// DuplicateTransactionError creates a duplicate error naming the
// transaction the key originally materialized.
func DuplicateTransactionError(transactionID uuid.UUID) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateTransaction,
		Code:    "DUPLICATE_TRANSACTION",
		Message: fmt.Sprintf("transaction already processed: %s", transactionID),
		Details: map[string]interface{}{"transaction_id": transactionID.String()},
	}
}

// NotReversibleError creates an error for a transaction whose state does
// not admit a reversal.
func NotReversibleError(transactionID uuid.UUID, message string) *DomainError {
	return &DomainError{
		Err:     ErrNotReversible,
		Code:    "TRANSACTION_NOT_REVERSIBLE",
		Message: message,
		Details: map[string]interface{}{"transaction_id": transactionID.String()},
	}
}

// ConcurrentModificationError creates a conflict error.
func ConcurrentModificationError(message string) *DomainError {
	return &DomainError{
		Err:       ErrConcurrentModification,
		Code:      "CONCURRENT_MODIFICATION",
		Message:   message,
		Retryable: true,
	}
}

// RateLimitError creates a rate limit error.
func RateLimitError(limit int64, window string) *DomainError {
	return &DomainError{
		Err:     ErrRateLimit,
		Code:    "RATE_LIMIT_EXCEEDED",
		Message: "rate limit exceeded",
		Details: map[string]interface{}{"limit": limit, "window": window},
	}
}

// ValidationError creates an invalid-input error for a named field.
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{"field": field},
	}
}

// InternalError wraps an infrastructure failure.
func InternalError(message string, err error) *DomainError {
	de := &DomainError{Err: ErrInternal, Code: "INTERNAL_ERROR", Message: message}
	if err != nil {
		de.Details = map[string]interface{}{"cause": err.Error()}
	}
	return de
}

// Predicates used by handlers and the retry policy.

func IsInvalidAmount(err error) bool     { return errors.Is(err, ErrInvalidAmount) }
func IsNegativeResult(err error) bool    { return errors.Is(err, ErrNegativeResult) }
func IsInvalidAccount(err error) bool    { return errors.Is(err, ErrInvalidAccount) }
func IsAccountSuspended(err error) bool  { return errors.Is(err, ErrAccountSuspended) }
func IsCurrencyMismatch(err error) bool  { return errors.Is(err, ErrCurrencyMismatch) }
func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }
func IsDuplicateTransaction(err error) bool {
	return errors.Is(err, ErrDuplicateTransaction)
}
func IsNotReversible(err error) bool {
	return errors.Is(err, ErrNotReversible)
}
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
func IsRateLimit(err error) bool     { return errors.Is(err, ErrRateLimit) }
func IsInvalidInput(err error) bool  { return errors.Is(err, ErrInvalidInput) }
func IsInternal(err error) bool      { return errors.Is(err, ErrInternal) }

// GetCode extracts the stable code from a domain error.
func GetCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "UNKNOWN_ERROR"
}

// GetDetails extracts details from a domain error.
func GetDetails(err error) map[string]interface{} {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}

// Wrap adds context while preserving the kind for errors.Is.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
