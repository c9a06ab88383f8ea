package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	accountsvc "github.com/ledger-service/ledger_service/internal/domain/services/account"
	idempotencysvc "github.com/ledger-service/ledger_service/internal/domain/services/idempotency"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/repositories/memory"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

type fixture struct {
	store    *memory.Store
	accounts *accountsvc.Service
	payments *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	c := cache.NewMemoryCache()
	log := logger.NewNop()

	accounts := accountsvc.NewService(store, c, 5*time.Minute, log)
	idem := idempotencysvc.NewService(store, c, 24*time.Hour, log)
	payments := NewService(store, accounts, idem, 3, log)

	return &fixture{store: store, accounts: accounts, payments: payments}
}

func (f *fixture) seedAccount(t *testing.T, balance, currency string) uuid.UUID {
	t.Helper()
	account := &entities.Account{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Currency:  currency,
		Balance:   decimal.RequireFromString(balance),
		Status:    entities.AccountStatusActive,
		Version:   1,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.store.SeedAccount(account)
	return account.ID
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance.String()
}

func transferOf(from, to uuid.UUID, amount, currency, key string) TransferParams {
	money, _ := entities.ParseMoney(amount, currency)
	return TransferParams{
		FromAccountID:  from,
		ToAccountID:    to,
		Amount:         money,
		IdempotencyKey: key,
	}
}

func TestTransferMovesFundsAndJournals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	tx, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	assert.Equal(t, entities.TransactionStatusCompleted, tx.Status)
	assert.NotNil(t, tx.CompletedAt)
	assert.Equal(t, "70", f.balance(t, a))
	assert.Equal(t, "80", f.balance(t, b))

	entries, err := f.store.GetEntriesByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Line ordering comes from the explicit sequence, not timestamps.
	assert.Equal(t, entities.EntryTypeDebit, entries[0].EntryType)
	assert.Equal(t, entities.EntryTypeCredit, entries[1].EntryType)
	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, 2, entries[1].Sequence)

	byType := map[entities.EntryType]*entities.TransactionEntry{}
	for _, e := range entries {
		byType[e.EntryType] = e
	}
	require.NotNil(t, byType[entities.EntryTypeDebit])
	require.NotNil(t, byType[entities.EntryTypeCredit])
	assert.Equal(t, a, byType[entities.EntryTypeDebit].AccountID)
	assert.Equal(t, b, byType[entities.EntryTypeCredit].AccountID)
	assert.True(t, byType[entities.EntryTypeDebit].Amount.Equal(byType[entities.EntryTypeCredit].Amount))
	assert.True(t, byType[entities.EntryTypeDebit].Amount.Equal(decimal.RequireFromString("30.00")))
}

func TestTransferDuplicateKeyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	first, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	_, err = f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.Error(t, err)
	assert.True(t, domainerrors.IsDuplicateTransaction(err))

	details := domainerrors.GetDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, first.ID.String(), details["transaction_id"])

	// Balances unchanged by the replay.
	assert.Equal(t, "70", f.balance(t, a))
	assert.Equal(t, "80", f.balance(t, b))
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "10.00", "USD")
	b := f.seedAccount(t, "0.00", "USD")

	_, err := f.payments.Transfer(ctx, transferOf(a, b, "50.00", "USD", "k2"))
	require.Error(t, err)
	assert.True(t, domainerrors.IsInsufficientFunds(err))

	assert.Equal(t, "10", f.balance(t, a))
	assert.Equal(t, "0", f.balance(t, b))

	// Nothing persisted for the failed attempt.
	tx, err := f.store.GetTransactionByIdempotencyKey(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestTransferCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	c := f.seedAccount(t, "50.00", "EUR")

	_, err := f.payments.Transfer(ctx, transferOf(a, c, "10.00", "USD", "k3"))
	require.Error(t, err)
	assert.True(t, domainerrors.IsCurrencyMismatch(err))

	assert.Equal(t, "100", f.balance(t, a))
	assert.Equal(t, "50", f.balance(t, c))
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	_, err := f.payments.Transfer(ctx, transferOf(a, a, "10.00", "USD", "same"))
	assert.True(t, domainerrors.IsInvalidInput(err))

	zero := transferOf(a, b, "10.00", "USD", "zero")
	zero.Amount = entities.ZeroMoney("USD")
	_, err = f.payments.Transfer(ctx, zero)
	assert.True(t, domainerrors.IsInvalidAmount(err))

	missing := transferOf(uuid.New(), b, "10.00", "USD", "missing")
	_, err = f.payments.Transfer(ctx, missing)
	assert.True(t, domainerrors.IsInvalidAccount(err))

	noKey := transferOf(a, b, "10.00", "USD", "")
	_, err = f.payments.Transfer(ctx, noKey)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestTransferSuspendedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	account, err := f.store.GetAccount(ctx, b)
	require.NoError(t, err)
	account.Status = entities.AccountStatusSuspended
	f.store.SeedAccount(account)

	_, err = f.payments.Transfer(ctx, transferOf(a, b, "10.00", "USD", "k-susp"))
	require.Error(t, err)
	assert.True(t, domainerrors.IsAccountSuspended(err))
	assert.Equal(t, "100", f.balance(t, a))
}

func TestTransferAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	tx, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	logs, err := f.store.ListAuditLogs(ctx, repositories.AuditLogFilter{TransactionID: &tx.ID})
	require.NoError(t, err)
	require.Len(t, logs, 4)

	counts := map[string]int{}
	for _, log := range logs {
		counts[log.Action]++
	}
	assert.Equal(t, 2, counts[entities.AuditActionBalanceUpdated])
	assert.Equal(t, 1, counts[entities.AuditActionTransferDebit])
	assert.Equal(t, 1, counts[entities.AuditActionTransferCredit])

	// Every balance mutation carries matching old/new values.
	for _, log := range logs {
		if log.Action != entities.AuditActionBalanceUpdated {
			continue
		}
		require.NotNil(t, log.OldBalance)
		require.NotNil(t, log.NewBalance)
		delta := log.NewBalance.Sub(*log.OldBalance).Abs()
		assert.True(t, delta.Equal(decimal.RequireFromString("30.00")))
	}
}

func TestReverseTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	original, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	reversal, err := f.payments.Reverse(ctx, original.ID, "dispute", "k4", entities.AuditMeta{})
	require.NoError(t, err)

	assert.Equal(t, entities.TransactionTypeReversal, reversal.TransactionType)
	assert.Contains(t, *reversal.Description, original.ID.String())
	assert.Equal(t, "100", f.balance(t, a))
	assert.Equal(t, "50", f.balance(t, b))

	reread, err := f.store.GetTransaction(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusReversed, reread.Status)

	rereadReversal, err := f.store.GetTransaction(ctx, reversal.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionTypeReversal, rereadReversal.TransactionType)
}

func TestReverseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	original, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	_, err = f.payments.Reverse(ctx, original.ID, "why", "short-reason", entities.AuditMeta{})
	assert.True(t, domainerrors.IsInvalidInput(err))

	_, err = f.payments.Reverse(ctx, uuid.New(), "dispute", "no-such", entities.AuditMeta{})
	assert.True(t, domainerrors.IsInvalidAccount(err))

	// A reversed transaction cannot be reversed again.
	_, err = f.payments.Reverse(ctx, original.ID, "dispute", "k4", entities.AuditMeta{})
	require.NoError(t, err)
	_, err = f.payments.Reverse(ctx, original.ID, "dispute again", "k5", entities.AuditMeta{})
	assert.True(t, domainerrors.IsNotReversible(err))
}

func TestReverseInsufficientDestinationFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "0.00", "USD")
	c := f.seedAccount(t, "0.00", "USD")

	original, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	// The destination spends the funds before the reversal arrives.
	_, err = f.payments.Transfer(ctx, transferOf(b, c, "30.00", "USD", "drain"))
	require.NoError(t, err)

	_, err = f.payments.Reverse(ctx, original.ID, "dispute", "k2", entities.AuditMeta{})
	require.Error(t, err)
	assert.True(t, domainerrors.IsInsufficientFunds(err))

	// The failed reversal leaves the original COMPLETED and balances
	// untouched.
	reread, err := f.store.GetTransaction(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCompleted, reread.Status)
	assert.Equal(t, "70", f.balance(t, a))
	assert.Equal(t, "0", f.balance(t, b))
	assert.Equal(t, "30", f.balance(t, c))
}

func TestConcurrentTransfersConserveFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "1000.00", "USD")
	b := f.seedAccount(t, "1000.00", "USD")

	run := func(from, to uuid.UUID, prefix string) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.payments.Transfer(ctx,
					transferOf(from, to, "1.00", "USD", fmt.Sprintf("%s-%d", prefix, i)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
	}

	run(a, b, "ab")
	run(b, a, "ba")

	assert.Equal(t, "1000", f.balance(t, a))
	assert.Equal(t, "1000", f.balance(t, b))

	count, err := f.store.CountAccountTransactions(ctx, a, repositories.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(200), count)
}

func TestReciprocalTransfersNoDeadlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "500.00", "USD")
	b := f.seedAccount(t, "500.00", "USD")

	// Opposing directions at once; lock ordering must prevent deadlock.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.payments.Transfer(ctx,
				transferOf(a, b, "1.00", "USD", fmt.Sprintf("fwd-%d", i)))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := f.payments.Transfer(ctx,
				transferOf(b, a, "1.00", "USD", fmt.Sprintf("rev-%d", i)))
			assert.NoError(t, err)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("transfers deadlocked")
	}

	assert.Equal(t, "500", f.balance(t, a))
	assert.Equal(t, "500", f.balance(t, b))
}

func TestGetAccountTransactionsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "1000.00", "USD")
	b := f.seedAccount(t, "0.00", "USD")

	for i := 0; i < 7; i++ {
		_, err := f.payments.Transfer(ctx, transferOf(a, b, "1.00", "USD", fmt.Sprintf("p-%d", i)))
		require.NoError(t, err)
	}

	page, err := f.payments.GetAccountTransactions(ctx, a, repositories.TransactionFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 3)
	assert.Equal(t, int64(7), page.TotalCount, "total must be the true count, not the page length")
	assert.Equal(t, 3, page.Limit)

	page, err = f.payments.GetAccountTransactions(ctx, a, repositories.TransactionFilter{Limit: 3, Offset: 6})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)
	assert.Equal(t, int64(7), page.TotalCount)

	// Out-of-range limits clamp instead of failing.
	page, err = f.payments.GetAccountTransactions(ctx, a, repositories.TransactionFilter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 0, page.Offset)

	_, err = f.payments.GetAccountTransactions(ctx, uuid.New(), repositories.TransactionFilter{})
	assert.True(t, domainerrors.IsInvalidAccount(err))
}

func TestGetTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seedAccount(t, "100.00", "USD")
	b := f.seedAccount(t, "50.00", "USD")

	tx, err := f.payments.Transfer(ctx, transferOf(a, b, "30.00", "USD", "k1"))
	require.NoError(t, err)

	got, entries, err := f.payments.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Len(t, entries, 2)

	_, _, err = f.payments.GetTransaction(ctx, uuid.New())
	assert.True(t, domainerrors.IsInvalidAccount(err))
}
