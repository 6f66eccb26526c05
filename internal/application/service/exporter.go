package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

const (
	claimsSheet = "Claims"
	stepsSheet  = "Steps"
)

var (
	claimHeaders = []interface{}{"Claim ID", "Submitter", "Amount", "Currency", "Base Amount", "Base Currency",
		"Category", "Description", "Claim Date", "Status", "Submitted At", "Completed At", "Rejection Reason"}
	stepHeaders = []interface{}{"Claim ID", "Sequence", "Stage", "Approver", "Status", "Comments", "Action At"}
)

// ClaimExporter writes an organization's claims and their approval ledgers as an xlsx workbook
type ClaimExporter struct {
	claims port.ClaimRepository
	steps  port.StepRepository
	logger *zap.Logger
}

// NewClaimExporter creates a ClaimExporter
func NewClaimExporter(claims port.ClaimRepository, steps port.StepRepository, logger *zap.Logger) *ClaimExporter {
	return &ClaimExporter{claims: claims, steps: steps, logger: logger}
}

// ExportOrganization writes the workbook to w
func (e *ClaimExporter) ExportOrganization(ctx context.Context, orgID int64, w io.Writer) error {
	claims, err := e.claims.ListByOrganization(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list claims: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", claimsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("create steps sheet: %w", err)
	}

	if err := setRow(f, claimsSheet, 1, claimHeaders); err != nil {
		return err
	}
	if err := setRow(f, stepsSheet, 1, stepHeaders); err != nil {
		return err
	}

	stepRow := 2
	for i, c := range claims {
		if err := setRow(f, claimsSheet, i+2, claimRow(c)); err != nil {
			return err
		}

		steps, err := e.steps.ListByClaimID(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("list steps of claim %d: %w", c.ID, err)
		}
		for _, s := range steps {
			if err := setRow(f, stepsSheet, stepRow, stepRowValues(s)); err != nil {
				return err
			}
			stepRow++
		}
	}

	if err := f.SetPanes(claimsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		e.logger.Warn("Failed to freeze header row", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info("Claims exported",
		zap.Int64("organization_id", orgID),
		zap.Int("claims", len(claims)),
		zap.Int("steps", stepRow-2))
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func claimRow(c *entity.Claim) []interface{} {
	return []interface{}{
		c.ID,
		c.SubmitterID,
		c.Amount.InexactFloat64(),
		c.Currency,
		c.ApprovalAmount().InexactFloat64(),
		c.BaseCurrency,
		c.Category,
		c.Description,
		c.ClaimDate.Format("2006-01-02"),
		c.Status.DisplayName(),
		formatTime(c.SubmittedAt),
		formatTime(c.CompletedAt),
		c.RejectionReason,
	}
}

func stepRowValues(s *entity.ApprovalStep) []interface{} {
	return []interface{}{
		s.ClaimID,
		s.Sequence,
		string(s.Stage),
		s.ApproverID,
		string(s.Status),
		s.Comments,
		formatTime(s.ActionAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
