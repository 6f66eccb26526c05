package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
	domainwf "github.com/expenseflow/approval-engine/internal/domain/workflow"
)

// Mocks embed the port interface so unused methods panic if a test reaches them.

type mockRuleRepo struct {
	port.RuleRepository
	rules   map[int64]*entity.ApprovalRule
	nextID  int64
	deleted []int64
	updated []*entity.ApprovalRule
}

func newMockRuleRepo(rules ...*entity.ApprovalRule) *mockRuleRepo {
	m := &mockRuleRepo{rules: make(map[int64]*entity.ApprovalRule), nextID: 100}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	m.nextID++
	rule.ID = m.nextID
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRuleRepo) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	m.updated = append(m.updated, rule)
	m.rules[rule.ID] = rule
	return nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	delete(m.rules, id)
	return nil
}

func (m *mockRuleRepo) ListByOrganization(ctx context.Context, orgID int64) ([]*entity.ApprovalRule, error) {
	var out []*entity.ApprovalRule
	for _, r := range m.rules {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	// reverse name order, never selection order
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

type mockConfigRepo struct {
	port.ApproverConfigRepository
	configs      []*entity.ApproverConfig
	nextID       int64
	calls        []string
	deleteByRule func(ruleID int64) error
}

func (m *mockConfigRepo) Create(ctx context.Context, cfg *entity.ApproverConfig) error {
	m.nextID++
	cfg.ID = m.nextID
	m.configs = append(m.configs, cfg)
	m.calls = append(m.calls, fmt.Sprintf("create:%d", cfg.ApproverID))
	return nil
}

func (m *mockConfigRepo) GetByID(ctx context.Context, id int64) (*entity.ApproverConfig, error) {
	for _, c := range m.configs {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockConfigRepo) UpdateSequence(ctx context.Context, id int64, sequence int) error {
	m.calls = append(m.calls, fmt.Sprintf("sequence:%d=%d", id, sequence))
	return nil
}

func (m *mockConfigRepo) Delete(ctx context.Context, id int64) error {
	m.calls = append(m.calls, fmt.Sprintf("delete:%d", id))
	kept := m.configs[:0]
	for _, c := range m.configs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.configs = kept
	return nil
}

func (m *mockConfigRepo) ListByRule(ctx context.Context, ruleID int64) ([]*entity.ApproverConfig, error) {
	var out []*entity.ApproverConfig
	for _, c := range m.configs {
		if c.RuleID == ruleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConfigRepo) DeleteByRuleAndApprover(ctx context.Context, ruleID, approverID int64) error {
	m.calls = append(m.calls, fmt.Sprintf("remove:%d/%d", ruleID, approverID))
	return nil
}

func (m *mockConfigRepo) DeleteByRule(ctx context.Context, ruleID int64) error {
	m.calls = append(m.calls, fmt.Sprintf("clear:%d", ruleID))
	if m.deleteByRule != nil {
		return m.deleteByRule(ruleID)
	}
	kept := m.configs[:0]
	for _, c := range m.configs {
		if c.RuleID != ruleID {
			kept = append(kept, c)
		}
	}
	m.configs = kept
	return nil
}

type mockDirectory struct {
	port.ApproverDirectory
	users map[int64]*entity.User
}

func newMockDirectory(users ...*entity.User) *mockDirectory {
	d := &mockDirectory{users: make(map[int64]*entity.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *mockDirectory) FindUser(ctx context.Context, id int64) (*entity.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", entity.ErrNotFound, id)
	}
	return u, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockClaimRepo struct {
	port.ClaimRepository
	claims    map[int64]*entity.Claim
	created   []*entity.Claim
	byStatus  []domainwf.State
	createErr error
}

func newMockClaimRepo(claims ...*entity.Claim) *mockClaimRepo {
	m := &mockClaimRepo{claims: make(map[int64]*entity.Claim)}
	for _, c := range claims {
		m.claims[c.ID] = c
	}
	return m
}

func (m *mockClaimRepo) Create(ctx context.Context, c *entity.Claim) error {
	if m.createErr != nil {
		return m.createErr
	}
	c.ID = int64(len(m.claims) + 1)
	m.claims[c.ID] = c
	m.created = append(m.created, c)
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	return m.claims[id], nil
}

func (m *mockClaimRepo) ListByOrganization(ctx context.Context, orgID int64) ([]*entity.Claim, error) {
	var out []*entity.Claim
	for id := int64(1); id <= int64(len(m.claims)); id++ {
		if c, ok := m.claims[id]; ok && c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockClaimRepo) ListByStatuses(ctx context.Context, statuses []domainwf.State) ([]*entity.Claim, error) {
	m.byStatus = statuses
	return nil, nil
}

type mockStepRepo struct {
	port.StepRepository
	steps []*entity.ApprovalStep
}

func (m *mockStepRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalStep, error) {
	var out []*entity.ApprovalStep
	for _, s := range m.steps {
		if s.ApproverID == approverID && s.IsPending() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStepRepo) ListByClaimID(ctx context.Context, claimID int64) ([]*entity.ApprovalStep, error) {
	var out []*entity.ApprovalStep
	for _, s := range m.steps {
		if s.ClaimID == claimID {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockOrgRepo struct {
	port.OrganizationRepository
	orgs map[int64]*entity.Organization
}

func (m *mockOrgRepo) GetByID(ctx context.Context, id int64) (*entity.Organization, error) {
	return m.orgs[id], nil
}

type mockAuditRepo struct {
	port.AuditRepository
	entries []*entity.AuditEntry
}

func (m *mockAuditRepo) Create(ctx context.Context, e *entity.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByClaimID(ctx context.Context, claimID int64) ([]*entity.AuditEntry, error) {
	var out []*entity.AuditEntry
	for _, e := range m.entries {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockConverter struct {
	rate  decimal.Decimal
	err   error
	calls []string
}

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	m.calls = append(m.calls, from+"_"+to)
	if m.err != nil {
		return decimal.Zero, decimal.Zero, m.err
	}
	return amount.Mul(m.rate).Round(2), m.rate, nil
}

type mockOrchestrator struct {
	workflow.Orchestrator
	claims      *mockClaimRepo
	initiated   []string
	initiateErr error
}

func (m *mockOrchestrator) initiate(path string, claimID int64, stage domainwf.State) (*entity.Claim, error) {
	m.initiated = append(m.initiated, path)
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	c := m.claims.claims[claimID]
	c.Status = stage
	return c, nil
}

func (m *mockOrchestrator) InitiateWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error) {
	return m.initiate("employee", claimID, domainwf.StatePendingManager)
}

func (m *mockOrchestrator) InitiateManagerExpenseWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error) {
	return m.initiate("manager", claimID, domainwf.StatePendingFinance)
}

func (m *mockOrchestrator) GetClaim(ctx context.Context, claimID int64) (*entity.Claim, error) {
	c := m.claims.claims[claimID]
	if c == nil {
		return nil, fmt.Errorf("%w: claim %d", entity.ErrNotFound, claimID)
	}
	return c, nil
}

func user(id, orgID int64, roles ...role.Role) *entity.User {
	return &entity.User{ID: id, OrganizationID: orgID, Name: fmt.Sprintf("user-%d", id), Roles: role.NewSet(roles...)}
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int { return &v }
