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
	"github.com/expenseflow/approval-engine/internal/domain/role"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

const userColumns = `id, organization_id, name, email, roles, manager_id, created_at`

// UserRepository implements port.UserRepository. Roles are stored comma separated.
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	nowIfZero(&user.CreatedAt)
	if len(user.Roles) == 0 {
		user.Roles = role.NewSet(role.Employee)
	}

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO users (organization_id, name, email, roles, manager_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.OrganizationID, user.Name, user.Email, strings.Join(user.Roles.Strings(), ","),
		nullInt64(user.ManagerID), user.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return translate(err, "create user")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	return nil
}

// GetByID returns nil when the user does not exist
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanOne(row)
}

func (r *UserRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*entity.User, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// FirstWithRole returns the lowest-id holder of the role, or nil
func (r *UserRepository) FirstWithRole(ctx context.Context, orgID int64, rl role.Role) (*entity.User, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE organization_id = ? AND (',' || roles || ',') LIKE ?
		ORDER BY id LIMIT 1`,
		orgID, "%,"+string(rl)+",%",
	)
	return r.scanOne(row)
}

func (r *UserRepository) scanOne(row *sql.Row) (*entity.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(s scanner) (*entity.User, error) {
	var (
		user    entity.User
		roles   string
		manager sql.NullInt64
	)
	if err := s.Scan(&user.ID, &user.OrganizationID, &user.Name, &user.Email, &roles, &manager, &user.CreatedAt); err != nil {
		return nil, err
	}

	var parsed []role.Role
	for _, name := range strings.Split(roles, ",") {
		if name == "" {
			continue
		}
		rl, err := role.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", user.ID, err)
		}
		parsed = append(parsed, rl)
	}
	user.Roles = role.NewSet(parsed...)
	user.ManagerID = int64Ptr(manager)
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
