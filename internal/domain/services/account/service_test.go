package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/internal/infrastructure/cache"
	"github.com/ledger-service/ledger_service/internal/infrastructure/repositories/memory"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, cache.NewMemoryCache(), 5*time.Minute, logger.NewNop()), store
}

func TestCreateAccount(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	opening, err := entities.ParseMoney("100.00", "usd")
	require.NoError(t, err)

	account, err := svc.Create(ctx, userID, opening, entities.AuditMeta{})
	require.NoError(t, err)

	assert.Equal(t, userID, account.UserID)
	assert.Equal(t, "USD", account.Currency)
	assert.Equal(t, entities.AccountStatusActive, account.Status)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("100.00")))

	// Creation leaves an audit row.
	logs, err := store.ListAuditLogs(ctx, repositories.AuditLogFilter{AccountID: &account.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, entities.AuditActionAccountCreated, logs[0].Action)
	require.NotNil(t, logs[0].NewBalance)
	assert.True(t, logs[0].NewBalance.Equal(account.Balance))
}

func TestCreateAccountRequiresUser(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), uuid.Nil, entities.ZeroMoney("USD"), entities.AuditMeta{})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestListByUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Create(ctx, userID, entities.ZeroMoney("USD"), entities.AuditMeta{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, userID, entities.ZeroMoney("EUR"), entities.AuditMeta{})
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), entities.ZeroMoney("USD"), entities.AuditMeta{})
	require.NoError(t, err)

	all, err := svc.ListByUser(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	usdOnly, err := svc.ListByUser(ctx, userID, "USD")
	require.NoError(t, err)
	require.Len(t, usdOnly, 1)
	assert.Equal(t, "USD", usdOnly[0].Currency)
}

func TestGetBalanceCaches(t *testing.T) {
	store := memory.NewStore()
	c := cache.NewMemoryCache()
	svc := NewService(store, c, 5*time.Minute, logger.NewNop())
	ctx := context.Background()

	opening, _ := entities.ParseMoney("42.00", "USD")
	account, err := svc.Create(ctx, uuid.New(), opening, entities.AuditMeta{})
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Amount.Equal(decimal.RequireFromString("42.00")))
	assert.Equal(t, int64(1), balance.Version)

	// The cached value survives a direct store mutation until invalidated.
	mutated, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	mutated.Balance = decimal.RequireFromString("999.00")
	store.SeedAccount(mutated)

	stale, err := svc.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, stale.Balance.Amount.Equal(decimal.RequireFromString("42.00")))

	svc.InvalidateBalance(ctx, account.ID)
	fresh, err := svc.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Amount.Equal(decimal.RequireFromString("999.00")))
}

func TestGetActiveForUpdateRejectsSuspended(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, uuid.New(), entities.ZeroMoney("USD"), entities.AuditMeta{})
	require.NoError(t, err)

	suspended, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	suspended.Status = entities.AccountStatusSuspended
	store.SeedAccount(suspended)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	_, err = svc.GetActiveForUpdate(ctx, uow, account.ID)
	assert.True(t, domainerrors.IsAccountSuspended(err))
}

func TestApplyBalanceChangeGuards(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	opening, _ := entities.ParseMoney("10.00", "USD")
	account, err := svc.Create(ctx, uuid.New(), opening, entities.AuditMeta{})
	require.NoError(t, err)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	locked, err := svc.GetActiveForUpdate(ctx, uow, account.ID)
	require.NoError(t, err)

	wrongCurrency, _ := entities.ParseMoney("5.00", "EUR")
	err = svc.ApplyBalanceChange(ctx, uow, locked, wrongCurrency, uuid.New(), entities.AuditMeta{})
	assert.True(t, domainerrors.IsCurrencyMismatch(err))

	newBalance, _ := entities.ParseMoney("7.50", "USD")
	require.NoError(t, svc.ApplyBalanceChange(ctx, uow, locked, newBalance, uuid.New(), entities.AuditMeta{}))
	assert.Equal(t, int64(2), locked.Version)
	require.NoError(t, uow.Commit())

	committed, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, committed.Balance.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, int64(2), committed.Version)
}
