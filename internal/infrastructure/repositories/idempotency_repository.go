package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

// idempotencyRow mirrors the idempotency_keys table; response_data is
// stored as JSONB.
type idempotencyRow struct {
	Key           string     `db:"idempotency_key"`
	TransactionID *uuid.UUID `db:"transaction_id"`
	RequestHash   *string    `db:"request_hash"`
	ResponseData  []byte     `db:"response_data"`
	CreatedAt     time.Time  `db:"created_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
}

func (r *idempotencyRow) toEntity() (*entities.IdempotencyRecord, error) {
	record := &entities.IdempotencyRecord{
		Key:           r.Key,
		TransactionID: r.TransactionID,
		RequestHash:   r.RequestHash,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
	if len(r.ResponseData) > 0 {
		if err := json.Unmarshal(r.ResponseData, &record.ResponseData); err != nil {
			return nil, fmt.Errorf("decode response_data: %w", err)
		}
	}
	return record, nil
}

// GetIdempotencyRecord returns the durable record for the key, or
// (nil, nil) when the key is unknown or past its TTL.
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*entities.IdempotencyRecord, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "idempotency_keys"})
	defer span.End()

	query := `
		SELECT idempotency_key, transaction_id, request_hash, response_data, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`
	var row idempotencyRow
	err := s.db.GetContext(ctx, &row, query, key)
	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil
	}
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return nil, domainerrors.InternalError("get idempotency record", err)
	}

	record, err := row.toEntity()
	if err != nil {
		return nil, domainerrors.InternalError("decode idempotency record", err)
	}
	return record, nil
}

// CreateIdempotencyRecord inserts the durable idempotency row inside the
// unit of work. A unique violation means a racer completed the same key
// first.
func (u *unitOfWork) CreateIdempotencyRecord(ctx context.Context, record *entities.IdempotencyRecord) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "idempotency_keys"})
	defer span.End()

	responseData, err := json.Marshal(record.ResponseData)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		return domainerrors.InternalError("encode idempotency response", err)
	}

	query := `
		INSERT INTO idempotency_keys (idempotency_key, transaction_id, request_hash, response_data, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = u.tx.ExecContext(ctx, query,
		record.Key, record.TransactionID, record.RequestHash,
		responseData, record.CreatedAt, record.ExpiresAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		if isUniqueViolation(err, "") {
			return &duplicateKeyError{key: record.Key}
		}
		return domainerrors.InternalError("create idempotency record", err)
	}
	return nil
}

// DeleteExpiredIdempotencyRecords removes rows past their TTL; run
// periodically by the sweeper worker.
func (s *Store) DeleteExpiredIdempotencyRecords(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "DELETE", Table: "idempotency_keys"})
	defer span.End()

	result, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		return 0, domainerrors.InternalError("delete expired idempotency records", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	return rows, nil
}
