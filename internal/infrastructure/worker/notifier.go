package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// LogNotifier writes reminders to the log. Delivery channels plug in behind port.Notifier.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyReminder(ctx context.Context, claim *entity.Claim, step *entity.ApprovalStep, approver *entity.User) error {
	n.logger.Info("Approval reminder",
		zap.Int64("claim_id", claim.ID),
		zap.Int64("step_id", step.ID),
		zap.Int("sequence", step.Sequence),
		zap.String("stage", string(step.Stage)),
		zap.Int64("approver_id", approver.ID),
		zap.String("approver_email", approver.Email),
		zap.String("amount", claim.Amount.String()),
		zap.String("currency", claim.Currency))
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
