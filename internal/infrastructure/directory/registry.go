package directory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

// Registry implements port.ApproverRegistry. Finance and director stages resolve to the
// organization's first administrator; with dedicated roles preferred, a FINANCE or DIRECTOR
// holder is tried first.
type Registry struct {
	directory            port.ApproverDirectory
	preferDedicatedRoles bool
	logger               *zap.Logger
}

// NewRegistry creates a registry
func NewRegistry(directory port.ApproverDirectory, preferDedicatedRoles bool, logger *zap.Logger) *Registry {
	return &Registry{
		directory:            directory,
		preferDedicatedRoles: preferDedicatedRoles,
		logger:               logger,
	}
}

func (r *Registry) ResolveApprover(ctx context.Context, orgID int64, stage entity.Stage) (*entity.User, error) {
	if r.preferDedicatedRoles {
		if dedicated, ok := dedicatedRole(stage); ok {
			user, err := r.directory.FindFirstUserWithRole(ctx, orgID, dedicated)
			switch {
			case err == nil:
				return user, nil
			case !errors.Is(err, entity.ErrNotFound):
				return nil, err
			}
			r.logger.Debug("No dedicated approver, falling back to administrator",
				zap.Int64("organization_id", orgID),
				zap.String("stage", string(stage)))
		}
	}

	admin, err := r.directory.FindFirstUserWithRole(ctx, orgID, role.Admin)
	if err != nil {
		return nil, fmt.Errorf("no approver for %s stage: %w", stage, err)
	}
	return admin, nil
}

func dedicatedRole(stage entity.Stage) (role.Role, bool) {
	switch stage {
	case entity.StageFinance:
		return role.Finance, true
	case entity.StageDirector:
		return role.Director, true
	default:
		return "", false
	}
}

var _ port.ApproverRegistry = (*Registry)(nil)
