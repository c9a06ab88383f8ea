// Package repositories implements the ledger store contracts on
// PostgreSQL via sqlx. All statements use positional parameters; unique
// violations and lock conflicts are translated into domain error kinds at
// this boundary.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// Postgres error codes translated at this boundary.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx so the same SQL
// helpers serve reads outside and writes inside a unit of work.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store implements repositories.LedgerStore on PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore creates a new postgres-backed ledger store.
func NewStore(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// Begin opens a unit of work at read-committed isolation. Row locks taken
// inside it are held until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (repositories.UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, domainerrors.InternalError("begin transaction", err)
	}
	return &unitOfWork{tx: tx, logger: s.logger}, nil
}

// unitOfWork implements repositories.UnitOfWork on a *sqlx.Tx.
type unitOfWork struct {
	tx     *sqlx.Tx
	logger *logger.Logger
	done   bool
}

func (u *unitOfWork) Commit() error {
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return domainerrors.InternalError("commit transaction", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return domainerrors.InternalError("rollback transaction", err)
	}
	return nil
}

// translateConflict maps low-level contention errors onto the domain
// taxonomy. Unique violations need per-call-site handling because the
// violated constraint decides the kind.
func translateConflict(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return domainerrors.ConcurrentModificationError(pqErr.Message)
		}
	}
	return err
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// optionally on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
