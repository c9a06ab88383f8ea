// Package memory implements the ledger store contracts in process memory.
// It is used by tests and local development. Row locking is real: each
// account has a mutex that GetAccountForUpdate acquires and holds until
// the unit of work commits or rolls back, so lock-ordering behavior
// matches the postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
)

// Store is an in-memory repositories.LedgerStore.
type Store struct {
	mu sync.RWMutex

	accounts     map[uuid.UUID]*entities.Account
	accountLocks map[uuid.UUID]*sync.Mutex

	transactions map[uuid.UUID]*entities.Transaction
	byIdemKey    map[string]uuid.UUID

	entries map[uuid.UUID][]*entities.TransactionEntry

	auditLogs []*entities.AuditLog

	idempotency map[string]*entities.IdempotencyRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*entities.Account),
		accountLocks: make(map[uuid.UUID]*sync.Mutex),
		transactions: make(map[uuid.UUID]*entities.Transaction),
		byIdemKey:    make(map[string]uuid.UUID),
		entries:      make(map[uuid.UUID][]*entities.TransactionEntry),
		idempotency:  make(map[string]*entities.IdempotencyRecord),
	}
}

// SeedAccount inserts an account directly, bypassing any unit of work.
// Test setup helper.
func (s *Store) SeedAccount(account *entities.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[account.ID] = &cp
	if _, ok := s.accountLocks[account.ID]; !ok {
		s.accountLocks[account.ID] = &sync.Mutex{}
	}
}

func (s *Store) lockFor(accountID uuid.UUID) (*sync.Mutex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, false
	}
	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	return lock, true
}

// Begin opens a unit of work. Writes stage in memory and apply atomically
// on Commit.
func (s *Store) Begin(ctx context.Context) (repositories.UnitOfWork, error) {
	return &unitOfWork{
		store:           s,
		stagedAccounts:  make(map[uuid.UUID]*entities.Account),
		stagedTxUpdates: make(map[uuid.UUID]txUpdate),
	}, nil
}

// GetAccount returns a copy of the account.
func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, domainerrors.InvalidAccountError(accountID)
	}
	cp := *account
	return &cp, nil
}

// ListAccountsByUser enumerates a user's accounts, oldest first.
func (s *Store) ListAccountsByUser(ctx context.Context, userID uuid.UUID, currency string) ([]*entities.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []*entities.Account
	for _, account := range s.accounts {
		if account.UserID != userID {
			continue
		}
		if currency != "" && account.Currency != currency {
			continue
		}
		cp := *account
		accounts = append(accounts, &cp)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// GetTransaction returns (nil, nil) when absent.
func (s *Store) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

// GetTransactionByIdempotencyKey returns (nil, nil) when no transaction
// carries the key.
func (s *Store) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	cp := *s.transactions[id]
	return &cp, nil
}

func matchesFilter(tx *entities.Transaction, accountID uuid.UUID, filter repositories.TransactionFilter) bool {
	involved := (tx.FromAccountID != nil && *tx.FromAccountID == accountID) ||
		(tx.ToAccountID != nil && *tx.ToAccountID == accountID)
	if !involved {
		return false
	}
	if filter.StartDate != nil && tx.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && tx.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

// ListAccountTransactions returns the account's transactions newest first.
func (s *Store) ListAccountTransactions(ctx context.Context, accountID uuid.UUID, filter repositories.TransactionFilter) ([]*entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entities.Transaction
	for _, tx := range s.transactions {
		if matchesFilter(tx, accountID, filter) {
			cp := *tx
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountAccountTransactions counts matches ignoring limit and offset.
func (s *Store) CountAccountTransactions(ctx context.Context, accountID uuid.UUID, filter repositories.TransactionFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, tx := range s.transactions {
		if matchesFilter(tx, accountID, filter) {
			count++
		}
	}
	return count, nil
}

// GetEntriesByTransaction returns the journal lines in sequence order,
// debit first.
func (s *Store) GetEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*entities.TransactionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[transactionID]
	entries := make([]*entities.TransactionEntry, 0, len(stored))
	for _, e := range stored {
		cp := *e
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries, nil
}

// GetIdempotencyRecord returns (nil, nil) for missing or expired keys.
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*entities.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[key]
	if !ok || record.Expired(time.Now().UTC()) {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

// DeleteExpiredIdempotencyRecords removes rows past their TTL.
func (s *Store) DeleteExpiredIdempotencyRecords(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var removed int64
	for key, record := range s.idempotency {
		if record.Expired(now) {
			delete(s.idempotency, key)
			removed++
		}
	}
	return removed, nil
}

// ListAuditLogs returns audit rows newest first.
func (s *Store) ListAuditLogs(ctx context.Context, filter repositories.AuditLogFilter) ([]*entities.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entities.AuditLog
	for _, log := range s.auditLogs {
		if filter.AccountID != nil && (log.AccountID == nil || *log.AccountID != *filter.AccountID) {
			continue
		}
		if filter.TransactionID != nil && (log.TransactionID == nil || *log.TransactionID != *filter.TransactionID) {
			continue
		}
		if filter.Action != nil && log.Action != *filter.Action {
			continue
		}
		if filter.StartDate != nil && log.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && log.CreatedAt.After(*filter.EndDate) {
			continue
		}
		cp := *log
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

type txUpdate struct {
	status *entities.TransactionStatus
	txType *entities.TransactionType
}

type lockedAccount struct {
	id   uuid.UUID
	lock *sync.Mutex
}

// unitOfWork stages writes and holds account row locks until Commit or
// Rollback.
type unitOfWork struct {
	store *Store
	done  bool

	held []lockedAccount

	stagedAccounts  map[uuid.UUID]*entities.Account
	newAccounts     []*entities.Account
	newTransactions []*entities.Transaction
	stagedTxUpdates map[uuid.UUID]txUpdate
	newEntries      []*entities.TransactionEntry
	newAuditLogs    []*entities.AuditLog
	newIdempotency  []*entities.IdempotencyRecord
}

// GetAccountForUpdate blocks until the account's row lock is granted and
// returns a snapshot reflecting any writes staged in this unit of work.
func (u *unitOfWork) GetAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	if staged, ok := u.stagedAccounts[accountID]; ok {
		cp := *staged
		return &cp, nil
	}

	lock, ok := u.store.lockFor(accountID)
	if !ok {
		return nil, domainerrors.InvalidAccountError(accountID)
	}
	lock.Lock()
	u.held = append(u.held, lockedAccount{id: accountID, lock: lock})

	u.store.mu.RLock()
	account, ok := u.store.accounts[accountID]
	if !ok {
		u.store.mu.RUnlock()
		return nil, domainerrors.InvalidAccountError(accountID)
	}
	cp := *account
	u.store.mu.RUnlock()

	u.stagedAccounts[accountID] = &cp
	out := cp
	return &out, nil
}

// CreateAccount stages a new account row.
func (u *unitOfWork) CreateAccount(ctx context.Context, account *entities.Account) error {
	if err := account.Validate(); err != nil {
		return domainerrors.ValidationError("account", err.Error())
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	cp := *account
	u.newAccounts = append(u.newAccounts, &cp)
	return nil
}

// UpdateAccountBalance stages the balance write and version bump. The
// account must already be locked by this unit of work.
func (u *unitOfWork) UpdateAccountBalance(ctx context.Context, accountID uuid.UUID, newBalance decimal.Decimal) error {
	staged, ok := u.stagedAccounts[accountID]
	if !ok {
		return domainerrors.InvalidAccountError(accountID)
	}
	staged.Balance = newBalance
	staged.Version++
	staged.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateTransaction stages a transaction row, enforcing idempotency-key
// uniqueness against committed state.
func (u *unitOfWork) CreateTransaction(ctx context.Context, tx *entities.Transaction) error {
	if err := tx.Validate(); err != nil {
		return domainerrors.ValidationError("transaction", err.Error())
	}

	u.store.mu.RLock()
	existingID, exists := u.store.byIdemKey[tx.IdempotencyKey]
	u.store.mu.RUnlock()
	if exists {
		return domainerrors.DuplicateTransactionError(existingID)
	}
	for _, staged := range u.newTransactions {
		if staged.IdempotencyKey == tx.IdempotencyKey {
			return domainerrors.DuplicateTransactionError(staged.ID)
		}
	}

	cp := *tx
	u.newTransactions = append(u.newTransactions, &cp)
	return nil
}

// UpdateTransactionStatus stages a status change.
func (u *unitOfWork) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status entities.TransactionStatus) error {
	if !u.knowsTransaction(transactionID) {
		return domainerrors.TransactionNotFoundError(transactionID)
	}
	update := u.stagedTxUpdates[transactionID]
	update.status = &status
	u.stagedTxUpdates[transactionID] = update
	return nil
}

// UpdateTransactionType stages a type change.
func (u *unitOfWork) UpdateTransactionType(ctx context.Context, transactionID uuid.UUID, txType entities.TransactionType) error {
	if !u.knowsTransaction(transactionID) {
		return domainerrors.TransactionNotFoundError(transactionID)
	}
	update := u.stagedTxUpdates[transactionID]
	update.txType = &txType
	u.stagedTxUpdates[transactionID] = update
	return nil
}

func (u *unitOfWork) knowsTransaction(transactionID uuid.UUID) bool {
	u.store.mu.RLock()
	_, committed := u.store.transactions[transactionID]
	u.store.mu.RUnlock()
	if committed {
		return true
	}
	for _, staged := range u.newTransactions {
		if staged.ID == transactionID {
			return true
		}
	}
	return false
}

// CreateEntry stages one journal line.
func (u *unitOfWork) CreateEntry(ctx context.Context, entry *entities.TransactionEntry) error {
	if err := entry.Validate(); err != nil {
		return domainerrors.ValidationError("entry", err.Error())
	}
	cp := *entry
	u.newEntries = append(u.newEntries, &cp)
	return nil
}

// CreateAuditLog stages an audit row.
func (u *unitOfWork) CreateAuditLog(ctx context.Context, log *entities.AuditLog) error {
	cp := *log
	u.newAuditLogs = append(u.newAuditLogs, &cp)
	return nil
}

// CreateIdempotencyRecord stages the durable idempotency row.
func (u *unitOfWork) CreateIdempotencyRecord(ctx context.Context, record *entities.IdempotencyRecord) error {
	u.store.mu.RLock()
	existing, exists := u.store.idempotency[record.Key]
	u.store.mu.RUnlock()
	if exists && !existing.Expired(time.Now().UTC()) {
		if existing.TransactionID != nil {
			return domainerrors.DuplicateTransactionError(*existing.TransactionID)
		}
		return domainerrors.ConcurrentModificationError("idempotency key already recorded")
	}
	cp := *record
	u.newIdempotency = append(u.newIdempotency, &cp)
	return nil
}

// Commit applies all staged writes atomically and releases row locks.
func (u *unitOfWork) Commit() error {
	if u.done {
		return domainerrors.InternalError("unit of work already finished", nil)
	}
	u.done = true
	defer u.releaseLocks()

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	// Last writer wins on the idempotency-key map is impossible here: the
	// staging check plus the row locks serialize competing transfers.
	for _, tx := range u.newTransactions {
		if _, exists := u.store.byIdemKey[tx.IdempotencyKey]; exists {
			return domainerrors.DuplicateTransactionError(u.store.byIdemKey[tx.IdempotencyKey])
		}
	}

	for _, account := range u.newAccounts {
		u.store.accounts[account.ID] = account
		if _, ok := u.store.accountLocks[account.ID]; !ok {
			u.store.accountLocks[account.ID] = &sync.Mutex{}
		}
	}
	for id, staged := range u.stagedAccounts {
		if _, ok := u.store.accounts[id]; ok {
			u.store.accounts[id] = staged
		}
	}
	for _, tx := range u.newTransactions {
		u.store.transactions[tx.ID] = tx
		u.store.byIdemKey[tx.IdempotencyKey] = tx.ID
	}
	for id, update := range u.stagedTxUpdates {
		tx, ok := u.store.transactions[id]
		if !ok {
			continue
		}
		if update.status != nil {
			tx.Status = *update.status
			if *update.status == entities.TransactionStatusCompleted && tx.CompletedAt == nil {
				now := time.Now().UTC()
				tx.CompletedAt = &now
			}
		}
		if update.txType != nil {
			tx.TransactionType = *update.txType
		}
	}
	for _, entry := range u.newEntries {
		u.store.entries[entry.TransactionID] = append(u.store.entries[entry.TransactionID], entry)
	}
	u.store.auditLogs = append(u.store.auditLogs, u.newAuditLogs...)
	for _, record := range u.newIdempotency {
		u.store.idempotency[record.Key] = record
	}
	return nil
}

// Rollback discards staged writes and releases row locks.
func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.releaseLocks()
	return nil
}

func (u *unitOfWork) releaseLocks() {
	for i := len(u.held) - 1; i >= 0; i-- {
		u.held[i].lock.Unlock()
	}
	u.held = nil
}
