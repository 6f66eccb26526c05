package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
	domainwf "github.com/expenseflow/approval-engine/internal/domain/workflow"
)

func TestClaimExporter_ExportOrganization(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	claims := newMockClaimRepo(
		&entity.Claim{ID: 1, OrganizationID: 1, SubmitterID: 3, Amount: decimal.NewFromInt(120), Currency: "USD",
			Category: "MEAL", ClaimDate: now, Status: domainwf.StatePendingFinance},
		&entity.Claim{ID: 2, OrganizationID: 1, SubmitterID: 4, Amount: decimal.NewFromInt(80), Currency: "EUR",
			BaseAmount: decimal.NewFromInt(88), BaseCurrency: "USD", ClaimDate: now, Status: domainwf.StateRejected,
			RejectionReason: "duplicate"},
		&entity.Claim{ID: 3, OrganizationID: 2, Amount: decimal.NewFromInt(1), Currency: "USD", Status: domainwf.StateDraft},
	)
	approved := entity.NewRecordedStep(1, 2, 1, entity.StageManager, "ok", now)
	steps := &mockStepRepo{steps: []*entity.ApprovalStep{
		approved,
		entity.NewPendingStep(1, 1, 2, entity.StageFinance, now),
	}}

	var buf bytes.Buffer
	exporter := NewClaimExporter(claims, steps, zap.NewNop())
	require.NoError(t, exporter.ExportOrganization(context.Background(), 1, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{claimsSheet, stepsSheet}, f.GetSheetList())

	claimRows, err := f.GetRows(claimsSheet)
	require.NoError(t, err)
	require.Len(t, claimRows, 3)
	assert.Equal(t, "Claim ID", claimRows[0][0])
	assert.Equal(t, "Pending Finance Approval", claimRows[1][9])
	assert.Equal(t, "88", claimRows[2][4])
	assert.Equal(t, "duplicate", claimRows[2][12])

	stepRows, err := f.GetRows(stepsSheet)
	require.NoError(t, err)
	require.Len(t, stepRows, 3)
	assert.Equal(t, "MANAGER", stepRows[1][2])
	assert.Equal(t, "APPROVED", stepRows[1][4])
	assert.Equal(t, "PENDING", stepRows[2][4])
}
