package container

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/expenseflow/approval-engine/internal/application/service"
	"github.com/expenseflow/approval-engine/internal/config"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{
			Path:         filepath.Join(t.TempDir(), "approvals.db"),
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
		Logger: config.LoggerConfig{Level: "debug", OutputPath: "stdout", Format: "json"},
		Workflow: config.WorkflowConfig{
			HighValueThreshold:        "25000",
			DirectorThreshold:         "50000",
			DefaultRequiredPercentage: 60,
			OverrideSequence:          999,
			CountSkippedSteps:         true,
		},
		Currency: config.CurrencyConfig{Rates: map[string]string{"eur_usd": "1.10"}},
		Reminder: config.ReminderConfig{
			Enabled:      true,
			Interval:     24 * time.Hour,
			ScanInterval: time.Hour,
			BatchSize:    10,
		},
	}
}

func TestNewContainer_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewContainer(nil, logger)
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Workflow.OverrideSequence = 1
	_, err = NewContainer(cfg, logger)
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	health := c.Health(context.Background())
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.Equal(t, 1, c.Workers().Count())
	assert.NotNil(t, c.Server())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close")
	assert.Error(t, c.Start(context.Background()), "start after close")
}

func TestContainer_ReminderDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reminder.Enabled = false

	c, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, 0, c.Workers().Count())
}

func TestContainer_BadRatesFailStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Currency.Rates = map[string]string{"EURUSD": "1.1"}

	c, err := NewContainer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
	assert.False(t, c.Ready())
}

func TestContainer_SubmitAndApproveOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, err := NewContainer(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	ctx := context.Background()
	repos := c.Repositories()

	org := &entity.Organization{Name: "Acme", DefaultCurrency: "USD"}
	require.NoError(t, repos.Organizations.Create(ctx, org))

	admin := &entity.User{OrganizationID: org.ID, Name: "Ada", Email: "ada@acme.test", Roles: role.NewSet(role.Admin)}
	require.NoError(t, repos.Users.Create(ctx, admin))
	manager := &entity.User{OrganizationID: org.ID, Name: "Max", Email: "max@acme.test", Roles: role.NewSet(role.Manager)}
	require.NoError(t, repos.Users.Create(ctx, manager))
	employee := &entity.User{OrganizationID: org.ID, Name: "Eve", Email: "eve@acme.test",
		Roles: role.NewSet(role.Employee), ManagerID: &manager.ID}
	require.NoError(t, repos.Users.Create(ctx, employee))

	router := c.Server().Router()
	call := func(method, path string, userID int64, body string) (int, map[string]interface{}) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp struct {
			Data map[string]interface{} `json:"data"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return w.Code, resp.Data
	}

	code, claim := call(http.MethodPost, "/api/v1/claims", employee.ID,
		`{"amount":"100","currency":"EUR","category":"TRAVEL"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "PENDING_MANAGER", claim["status"])
	assert.Equal(t, "110", claim["base_amount"])

	claimPath := "/api/v1/claims/" + strconv.FormatInt(int64(claim["id"].(float64)), 10)

	code, _ = call(http.MethodPost, claimPath+"/approve", employee.ID, `{}`)
	assert.Equal(t, http.StatusForbidden, code, "submitter cannot approve")

	code, claim = call(http.MethodPost, claimPath+"/approve", manager.ID, `{"comments":"fine"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING_FINANCE", claim["status"])

	req := httptest.NewRequest(http.MethodGet, claimPath+"/audit", nil)
	req.Header.Set("X-User-ID", strconv.FormatInt(employee.ID, 10))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	assert.GreaterOrEqual(t, len(audit.Data), 2)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "approval_engine_workflow_operations_total")
}

func TestContainer_ConcurrentRejectAndOverride(t *testing.T) {
	c, err := NewContainer(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	ctx := context.Background()
	repos := c.Repositories()

	org := &entity.Organization{Name: "Acme", DefaultCurrency: "USD"}
	require.NoError(t, repos.Organizations.Create(ctx, org))
	admin := &entity.User{OrganizationID: org.ID, Name: "Ada", Email: "ada@acme.test", Roles: role.NewSet(role.Admin)}
	require.NoError(t, repos.Users.Create(ctx, admin))
	manager := &entity.User{OrganizationID: org.ID, Name: "Max", Email: "max@acme.test", Roles: role.NewSet(role.Manager)}
	require.NoError(t, repos.Users.Create(ctx, manager))
	employee := &entity.User{OrganizationID: org.ID, Name: "Eve", Email: "eve@acme.test",
		Roles: role.NewSet(role.Employee), ManagerID: &manager.ID}
	require.NoError(t, repos.Users.Create(ctx, employee))

	for round := 0; round < 15; round++ {
		claim, err := c.Services().Claims.Submit(ctx, service.SubmitRequest{
			SubmitterID: employee.ID,
			Amount:      decimal.NewFromInt(100),
			Currency:    "USD",
			Category:    "TRAVEL",
		})
		require.NoError(t, err)
		require.Equal(t, "PENDING_MANAGER", claim.Status.String())

		before, err := repos.Audit.ListByClaimID(ctx, claim.ID)
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = c.Orchestrator().RejectExpense(ctx, claim.ID, manager.ID, "duplicate receipt")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[1] = c.Orchestrator().ProcessAdminOverride(ctx, claim.ID, admin.ID, "paid already")
		}()
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, entity.ErrConflict) || errors.Is(err, entity.ErrInvalidState),
				"round %d: unexpected error %v", round, err)
		}
		require.Equal(t, 1, succeeded, "round %d: exactly one operation wins", round)

		stored, err := repos.Claims.GetByID(ctx, claim.ID)
		require.NoError(t, err)
		if errs[0] == nil {
			assert.Equal(t, "REJECTED", stored.Status.String())
		} else {
			assert.Equal(t, "APPROVED", stored.Status.String())
		}

		after, err := repos.Audit.ListByClaimID(ctx, claim.ID)
		require.NoError(t, err)
		assert.Len(t, after, len(before)+1, "round %d: only the winner is audited", round)
	}
}
