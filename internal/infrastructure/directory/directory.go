// Package directory resolves users, managers and stage approvers from the user repository.
package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

// Directory implements port.ApproverDirectory
type Directory struct {
	users  port.UserRepository
	logger *zap.Logger
}

// NewDirectory creates a directory over the user repository
func NewDirectory(users port.UserRepository, logger *zap.Logger) *Directory {
	return &Directory{users: users, logger: logger}
}

func (d *Directory) FindUser(ctx context.Context, id int64) (*entity.User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %d: %w", id, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", entity.ErrNotFound, id)
	}
	return user, nil
}

// FindManagerOf returns nil when the user has no manager. A manager id that no longer
// resolves is reported as entity.ErrNotFound.
func (d *Directory) FindManagerOf(ctx context.Context, userID int64) (*entity.User, error) {
	user, err := d.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ManagerID == nil {
		return nil, nil
	}

	manager, err := d.users.GetByID(ctx, *user.ManagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find manager of user %d: %w", userID, err)
	}
	if manager == nil {
		d.logger.Warn("Manager reference does not resolve",
			zap.Int64("user_id", userID),
			zap.Int64("manager_id", *user.ManagerID))
		return nil, fmt.Errorf("%w: manager %d of user %d", entity.ErrNotFound, *user.ManagerID, userID)
	}
	return manager, nil
}

func (d *Directory) FindFirstUserWithRole(ctx context.Context, orgID int64, r role.Role) (*entity.User, error) {
	user, err := d.users.FirstWithRole(ctx, orgID, r)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in organization %d: %w", r, orgID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no %s in organization %d", entity.ErrNotFound, r, orgID)
	}
	return user, nil
}

func (d *Directory) UserHasRole(ctx context.Context, userID int64, r role.Role) (bool, error) {
	user, err := d.FindUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.HasRole(r), nil
}

var _ port.ApproverDirectory = (*Directory)(nil)
