package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

// OrganizationRepository implements port.OrganizationRepository
type OrganizationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlite.DB, logger *zap.Logger) port.OrganizationRepository {
	return &OrganizationRepository{db: db, logger: logger}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	nowIfZero(&org.CreatedAt)
	org.DefaultCurrency = strings.ToUpper(org.DefaultCurrency)
	if org.DefaultCurrency == "" {
		org.DefaultCurrency = "USD"
	}

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO organizations (name, country, default_currency, created_at) VALUES (?, ?, ?, ?)`,
		org.Name, org.Country, org.DefaultCurrency, org.CreatedAt,
	)
	if err != nil {
		return translate(err, "create organization")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	org.ID = id
	return nil
}

// GetByID returns nil when the organization does not exist
func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, country, default_currency, created_at FROM organizations WHERE id = ?`, id,
	).Scan(&org.ID, &org.Name, &org.Country, &org.DefaultCurrency, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get organization", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

var _ port.OrganizationRepository = (*OrganizationRepository)(nil)
