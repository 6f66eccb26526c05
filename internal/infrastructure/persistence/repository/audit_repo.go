package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository over the append-only audit_log table
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	nowIfZero(&entry.CreatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (claim_id, actor_id, operation, from_status, to_status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ClaimID, entry.ActorID, entry.Operation, entry.FromStatus, entry.ToStatus, entry.Note, entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to write audit entry", zap.Int64("claim_id", entry.ClaimID), zap.Error(err))
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByClaimID returns the claim's entries oldest first
func (r *AuditRepository) ListByClaimID(ctx context.Context, claimID int64) ([]*entity.AuditEntry, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `
		SELECT id, claim_id, actor_id, operation, from_status, to_status, note, created_at
		FROM audit_log WHERE claim_id = ? ORDER BY id`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.ActorID, &e.Operation, &e.FromStatus, &e.ToStatus,
			&e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
