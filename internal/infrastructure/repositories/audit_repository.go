package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/repositories"
	"github.com/ledger-service/ledger_service/pkg/tracing"
)

// auditLogRow mirrors the audit_logs table; extra_data is stored as JSONB.
type auditLogRow struct {
	ID            uuid.UUID        `db:"id"`
	TransactionID *uuid.UUID       `db:"transaction_id"`
	AccountID     *uuid.UUID       `db:"account_id"`
	Action        string           `db:"action"`
	OldBalance    *decimal.Decimal `db:"old_balance"`
	NewBalance    *decimal.Decimal `db:"new_balance"`
	UserID        *uuid.UUID       `db:"user_id"`
	IPAddress     *string          `db:"ip_address"`
	UserAgent     *string          `db:"user_agent"`
	ExtraData     []byte           `db:"extra_data"`
	CreatedAt     time.Time        `db:"created_at"`
}

func (r *auditLogRow) toEntity() (*entities.AuditLog, error) {
	log := &entities.AuditLog{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		AccountID:     r.AccountID,
		Action:        r.Action,
		OldBalance:    r.OldBalance,
		NewBalance:    r.NewBalance,
		UserID:        r.UserID,
		IPAddress:     r.IPAddress,
		UserAgent:     r.UserAgent,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.ExtraData) > 0 {
		if err := json.Unmarshal(r.ExtraData, &log.ExtraData); err != nil {
			return nil, fmt.Errorf("decode extra_data: %w", err)
		}
	}
	return log, nil
}

// CreateAuditLog appends one audit row inside the unit of work. Audit rows
// are never updated or deleted.
func (u *unitOfWork) CreateAuditLog(ctx context.Context, log *entities.AuditLog) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "audit_logs"})
	defer span.End()

	var extraData []byte
	if log.ExtraData != nil {
		var err error
		extraData, err = json.Marshal(log.ExtraData)
		if err != nil {
			tracing.EndDBSpan(span, err, 0)
			return domainerrors.InternalError("encode audit extra data", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			id, transaction_id, account_id, action, old_balance, new_balance,
			user_id, ip_address, user_agent, extra_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := u.tx.ExecContext(ctx, query,
		log.ID, log.TransactionID, log.AccountID, log.Action,
		log.OldBalance, log.NewBalance, log.UserID, log.IPAddress,
		log.UserAgent, extraData, log.CreatedAt,
	)
	tracing.EndDBSpan(span, err, 1)
	if err != nil {
		return domainerrors.InternalError("create audit log", err)
	}
	return nil
}

// ListAuditLogs returns audit rows newest first, filtered by whichever
// predicates the caller set.
func (s *Store) ListAuditLogs(ctx context.Context, filter repositories.AuditLogFilter) ([]*entities.AuditLog, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "audit_logs"})
	defer span.End()

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, transaction_id, account_id, action, old_balance, new_balance,
			user_id, ip_address, user_agent, extra_data, created_at
		FROM audit_logs
		WHERE 1=1`)

	var args []interface{}
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		fmt.Fprintf(&sb, " AND account_id = $%d", len(args))
	}
	if filter.TransactionID != nil {
		args = append(args, *filter.TransactionID)
		fmt.Fprintf(&sb, " AND transaction_id = $%d", len(args))
	}
	if filter.Action != nil {
		args = append(args, *filter.Action)
		fmt.Fprintf(&sb, " AND action = $%d", len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		fmt.Fprintf(&sb, " AND created_at <= $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	var rows []*auditLogRow
	err := s.db.SelectContext(ctx, &rows, sb.String(), args...)
	tracing.EndDBSpan(span, err, int64(len(rows)))
	if err != nil {
		return nil, domainerrors.InternalError("list audit logs", err)
	}

	logs := make([]*entities.AuditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.toEntity()
		if err != nil {
			return nil, domainerrors.InternalError("decode audit log", err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}
