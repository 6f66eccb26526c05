package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// RuleRequest is the body of rule create and update
type RuleRequest struct {
	Name                 string           `json:"name" binding:"required"`
	MinAmount            *decimal.Decimal `json:"min_amount"`
	MaxAmount            *decimal.Decimal `json:"max_amount"`
	RequiresManagerFirst bool             `json:"requires_manager_first"`
	RequiredPercentage   *int             `json:"required_percentage"`
	DesignatedApproverID *int64           `json:"designated_approver_id"`
	IsHybrid             bool             `json:"is_hybrid"`
	PercentageOrCFO      bool             `json:"percentage_or_cfo"`
	Condition            string           `json:"condition"`
}

func (r RuleRequest) apply(rule *entity.ApprovalRule) {
	rule.Name = r.Name
	rule.MinAmount = r.MinAmount
	rule.MaxAmount = r.MaxAmount
	rule.RequiresManagerFirst = r.RequiresManagerFirst
	if r.RequiredPercentage != nil {
		rule.RequiredPercentage = r.RequiredPercentage
	}
	rule.DesignatedApproverID = r.DesignatedApproverID
	rule.IsHybrid = r.IsHybrid
	rule.PercentageOrCFO = r.PercentageOrCFO
	rule.Condition = r.Condition
}

// ApproverRequest is the body of POST /rules/:id/approvers
type ApproverRequest struct {
	ApproverID     int64            `json:"approver_id" binding:"required"`
	Sequence       int              `json:"sequence" binding:"required"`
	MinAmount      *decimal.Decimal `json:"min_amount"`
	MaxAmount      *decimal.Decimal `json:"max_amount"`
	IsManagerStep  bool             `json:"is_manager_step"`
	IsFinanceStep  bool             `json:"is_finance_step"`
	IsDirectorStep bool             `json:"is_director_step"`
	IsCFOStep      bool             `json:"is_cfo_step"`
}

// CreateRule handles POST /api/v1/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	rule := entity.NewApprovalRule(actor(c).OrganizationID, req.Name)
	req.apply(rule)
	if err := h.services.Rules.CreateRule(c.Request.Context(), rule); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: rule})
}

// ListRules handles GET /api/v1/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.services.Rules.ListRules(c.Request.Context(), actor(c).OrganizationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, rules)
}

// FindApplicableRule handles GET /api/v1/rules/applicable?amount=
func (h *Handlers) FindApplicableRule(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "amount must be a number"})
		return
	}

	rule, err := h.services.Rules.FindApplicableRule(c.Request.Context(), actor(c).OrganizationID, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, rule)
}

// GetRule handles GET /api/v1/rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	ok(c, rule)
}

// UpdateRule handles PUT /api/v1/rules/:id
func (h *Handlers) UpdateRule(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	req.apply(rule)
	if err := h.services.Rules.UpdateRule(c.Request.Context(), rule); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, rule)
}

// DeleteRule handles DELETE /api/v1/rules/:id
func (h *Handlers) DeleteRule(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	if err := h.services.Rules.DeleteRule(c.Request.Context(), rule.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetRuleSequence handles PUT /api/v1/rules/:id/sequence
func (h *Handlers) SetRuleSequence(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	var req struct {
		ApproverIDs []int64 `json:"approver_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	configs, err := h.services.Rules.SetRuleSequence(c.Request.Context(), rule.ID, req.ApproverIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, configs)
}

// SetDesignatedApprover handles PUT /api/v1/rules/:id/designated-approver
func (h *Handlers) SetDesignatedApprover(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	var req struct {
		ApproverID int64 `json:"approver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	updated, err := h.services.Approvers.SetCFOApprover(c.Request.Context(), rule.ID, req.ApproverID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, updated)
}

// SetRequiredPercentage handles PUT /api/v1/rules/:id/percentage
func (h *Handlers) SetRequiredPercentage(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	var req struct {
		Percentage int `json:"percentage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	updated, err := h.services.Approvers.SetRequiredPercentage(c.Request.Context(), rule.ID, req.Percentage)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, updated)
}

// ListApprovers handles GET /api/v1/rules/:id/approvers
func (h *Handlers) ListApprovers(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	configs, err := h.services.Approvers.ListByRule(c.Request.Context(), rule.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, configs)
}

// AddApprover handles POST /api/v1/rules/:id/approvers
func (h *Handlers) AddApprover(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	var req ApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	cfg := &entity.ApproverConfig{
		RuleID:         rule.ID,
		ApproverID:     req.ApproverID,
		Sequence:       req.Sequence,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		IsManagerStep:  req.IsManagerStep,
		IsFinanceStep:  req.IsFinanceStep,
		IsDirectorStep: req.IsDirectorStep,
		IsCFOStep:      req.IsCFOStep,
	}
	if err := h.services.Approvers.CreateConfig(c.Request.Context(), cfg); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: cfg})
}

// RemoveApprover handles DELETE /api/v1/rules/:id/approvers/:userId
func (h *Handlers) RemoveApprover(c *gin.Context) {
	rule, found := h.ownRule(c)
	if !found {
		return
	}
	userID, valid := pathID(c, "userId")
	if !valid {
		return
	}
	if err := h.services.Approvers.RemoveApprover(c.Request.Context(), rule.ID, userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateApproverSequence handles PUT /api/v1/approvers/:id/sequence
func (h *Handlers) UpdateApproverSequence(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req struct {
		Sequence int `json:"sequence" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	cfg, err := h.services.Approvers.UpdateSequence(c.Request.Context(), id, req.Sequence)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, cfg)
}

// ownRule loads the rule named by :id when it belongs to the actor's organization
func (h *Handlers) ownRule(c *gin.Context) (*entity.ApprovalRule, bool) {
	id, valid := pathID(c, "id")
	if !valid {
		return nil, false
	}

	rule, err := h.services.Rules.GetRule(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if rule.OrganizationID != actor(c).OrganizationID {
		h.fail(c, fmt.Errorf("%w: rule %d", entity.ErrNotFound, id))
		return nil, false
	}
	return rule, true
}
