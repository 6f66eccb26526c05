package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/expenseflow/approval-engine/internal/application/service"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
	"github.com/expenseflow/approval-engine/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SubmitClaimRequest is the body of POST /claims. ClaimDate is YYYY-MM-DD.
type SubmitClaimRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" binding:"required"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ClaimDate   string          `json:"claim_date"`
}

// ActionRequest carries the free text of a workflow action
type ActionRequest struct {
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
	Info     string `json:"info"`
}

// ClaimResponse is a claim plus the workflow triggers its status permits
type ClaimResponse struct {
	*entity.Claim
	AllowedActions []workflow.Trigger `json:"allowed_actions"`
}

// ProgressResponse reports how far a claim has been approved
type ProgressResponse struct {
	ClaimID    int64 `json:"claim_id"`
	Percentage int   `json:"percentage"`
	Complete   bool  `json:"complete"`
}

// SubmitClaim handles POST /api/v1/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	var claimDate time.Time
	if req.ClaimDate != "" {
		d, err := time.Parse(time.DateOnly, req.ClaimDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "claim_date must be YYYY-MM-DD"})
			return
		}
		claimDate = d
	}

	claim, err := h.services.Claims.Submit(c.Request.Context(), service.SubmitRequest{
		SubmitterID: actor(c).ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ClaimDate:   claimDate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: claim})
}

// ListMyClaims handles GET /api/v1/claims/mine
func (h *Handlers) ListMyClaims(c *gin.Context) {
	claims, err := h.services.Claims.ListBySubmitter(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, claims)
}

// ListTeamClaims handles GET /api/v1/claims/team
func (h *Handlers) ListTeamClaims(c *gin.Context) {
	claims, err := h.services.Claims.ListTeamClaims(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, claims)
}

// ListOrganizationClaims handles GET /api/v1/claims
func (h *Handlers) ListOrganizationClaims(c *gin.Context) {
	claims, err := h.services.Claims.ListOrganizationClaims(c.Request.Context(), actor(c).OrganizationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, claims)
}

// ExportClaims handles GET /api/v1/claims/export
func (h *Handlers) ExportClaims(c *gin.Context) {
	orgID := actor(c).OrganizationID

	var buf bytes.Buffer
	if err := h.services.Exporter.ExportOrganization(c.Request.Context(), orgID, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="claims-%d.xlsx"`, orgID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetClaim handles GET /api/v1/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	claim, found := h.visibleClaim(c)
	if !found {
		return
	}
	ok(c, ClaimResponse{Claim: claim, AllowedActions: claim.AllowedActions()})
}

// GetAuditTrail handles GET /api/v1/claims/:id/audit
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	claim, found := h.visibleClaim(c)
	if !found {
		return
	}
	entries, err := h.services.Claims.AuditTrail(c.Request.Context(), claim.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, entries)
}

// GetProgress handles GET /api/v1/claims/:id/progress
func (h *Handlers) GetProgress(c *gin.Context) {
	claim, found := h.visibleClaim(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	pct, err := h.services.Orchestrator.ApprovalPercentage(ctx, claim.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	complete, err := h.services.Orchestrator.IsApprovalComplete(ctx, claim.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, ProgressResponse{ClaimID: claim.ID, Percentage: pct, Complete: complete})
}

// visibleClaim loads the claim if the actor may see it. Claims of other organizations
// are reported as missing.
func (h *Handlers) visibleClaim(c *gin.Context) (*entity.Claim, bool) {
	id, valid := pathID(c, "id")
	if !valid {
		return nil, false
	}

	claim, err := h.services.Claims.GetClaim(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}

	user := actor(c)
	if claim.OrganizationID != user.OrganizationID {
		h.fail(c, fmt.Errorf("%w: claim %d", entity.ErrNotFound, id))
		return nil, false
	}
	if !canView(user, claim) {
		h.fail(c, fmt.Errorf("%w: user %d may not view claim %d", entity.ErrUnauthorized, user.ID, id))
		return nil, false
	}
	return claim, true
}

func canView(user *entity.User, claim *entity.Claim) bool {
	if claim.SubmitterID == user.ID || user.Can(role.CapViewAllExpenses) || user.Can(role.CapViewTeamExpenses) {
		return true
	}
	for _, step := range claim.Steps {
		if step.ApproverID == user.ID {
			return true
		}
	}
	return false
}

type claimAction func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error)

// act runs a workflow operation for the acting user; the orchestrator authorizes it
func (h *Handlers) act(c *gin.Context, action claimAction) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ActionRequest
	if !bind(c, &req) {
		return
	}

	claim, err := action(c, id, actor(c).ID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, claim)
}

// Approve handles POST /api/v1/claims/:id/approve for whichever stage is pending
func (h *Handlers) Approve(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.ApproveCurrentStep(c.Request.Context(), claimID, actorID, req.Comments)
	})
}

// ApproveDesignated handles POST /api/v1/claims/:id/approve/designated
func (h *Handlers) ApproveDesignated(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.ProcessCFOApproval(c.Request.Context(), claimID, actorID, req.Comments)
	})
}

// Reject handles POST /api/v1/claims/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.RejectExpense(c.Request.Context(), claimID, actorID, req.Reason)
	})
}

// Override handles POST /api/v1/claims/:id/override
func (h *Handlers) Override(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.ProcessAdminOverride(c.Request.Context(), claimID, actorID, req.Comments)
	})
}

// Escalate handles POST /api/v1/claims/:id/escalate
func (h *Handlers) Escalate(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.EscalateExpense(c.Request.Context(), claimID, actorID, req.Reason)
	})
}

// RequestInfo handles POST /api/v1/claims/:id/request-info
func (h *Handlers) RequestInfo(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.RequestAdditionalInfo(c.Request.Context(), claimID, actorID, req.Comments)
	})
}

// ProvideInfo handles POST /api/v1/claims/:id/provide-info
func (h *Handlers) ProvideInfo(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.ProvideAdditionalInfo(c.Request.Context(), claimID, actorID, req.Info)
	})
}

// Reevaluate handles POST /api/v1/claims/:id/reevaluate
func (h *Handlers) Reevaluate(c *gin.Context) {
	h.act(c, func(c *gin.Context, claimID, actorID int64, req ActionRequest) (*entity.Claim, error) {
		return h.services.Orchestrator.ReevaluateClaim(c.Request.Context(), claimID, actorID)
	})
}

// ListMyPendingApprovals handles GET /api/v1/approvals/pending
func (h *Handlers) ListMyPendingApprovals(c *gin.Context) {
	pending, err := h.services.Claims.ListPendingForApprover(c.Request.Context(), actor(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, pending)
}

// ListAllPending handles GET /api/v1/approvals/all, scoped to the actor's organization
func (h *Handlers) ListAllPending(c *gin.Context) {
	claims, err := h.services.Claims.ListAllPending(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	orgID := actor(c).OrganizationID
	scoped := make([]*entity.Claim, 0, len(claims))
	for _, claim := range claims {
		if claim.OrganizationID == orgID {
			scoped = append(scoped, claim)
		}
	}
	ok(c, scoped)
}
