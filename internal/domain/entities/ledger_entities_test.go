package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAccount() *Account {
	return &Account{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Currency: "USD",
		Balance:  decimal.RequireFromString("100.00"),
		Status:   AccountStatusActive,
		Version:  1,
	}
}

func TestAccountValidate(t *testing.T) {
	require.NoError(t, validAccount().Validate())

	missingUser := validAccount()
	missingUser.UserID = uuid.Nil
	assert.Error(t, missingUser.Validate())

	badCurrency := validAccount()
	badCurrency.Currency = "DOLLARS"
	assert.Error(t, badCurrency.Validate())

	negative := validAccount()
	negative.Balance = decimal.RequireFromString("-0.01")
	assert.Error(t, negative.Validate())

	badStatus := validAccount()
	badStatus.Status = AccountStatus("FROZEN")
	assert.Error(t, badStatus.Validate())
}

func TestAccountIsActive(t *testing.T) {
	account := validAccount()
	assert.True(t, account.IsActive())

	account.Status = AccountStatusSuspended
	assert.False(t, account.IsActive())
}

func TestTransactionValidate(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	tx := &Transaction{
		ID:              uuid.New(),
		FromAccountID:   &from,
		ToAccountID:     &to,
		Amount:          decimal.RequireFromString("30.00"),
		Currency:        "USD",
		TransactionType: TransactionTypeTransfer,
		Status:          TransactionStatusPending,
		IdempotencyKey:  "k1",
	}
	require.NoError(t, tx.Validate())

	oneSided := *tx
	oneSided.ToAccountID = nil
	assert.Error(t, oneSided.Validate())

	zeroAmount := *tx
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	noKey := *tx
	noKey.IdempotencyKey = ""
	assert.Error(t, noKey.Validate())
}

func TestTransactionMarkCompleted(t *testing.T) {
	tx := &Transaction{Status: TransactionStatusPending}
	tx.MarkCompleted()

	assert.Equal(t, TransactionStatusCompleted, tx.Status)
	require.NotNil(t, tx.CompletedAt)
	assert.WithinDuration(t, time.Now().UTC(), *tx.CompletedAt, time.Second)
}

func TestEntryValidate(t *testing.T) {
	entry := &TransactionEntry{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		AccountID:     uuid.New(),
		EntryType:     EntryTypeDebit,
		Amount:        decimal.RequireFromString("30.00"),
		Currency:      "USD",
		Sequence:      1,
	}
	require.NoError(t, entry.Validate())
	assert.True(t, entry.IsDebit())
	assert.False(t, entry.IsCredit())

	entry.EntryType = EntryType("TRANSFER")
	assert.Error(t, entry.Validate())
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Now().UTC()
	record := &IdempotencyRecord{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, record.Expired(now))
	assert.True(t, record.Expired(now.Add(time.Hour)))
	assert.True(t, record.Expired(now.Add(2*time.Hour)))
}
