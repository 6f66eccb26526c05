// Package http exposes the approval engine over a JSON API.
// Handlers only translate requests into application service calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/service"
	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Exporter writes an organization's claims as a spreadsheet
type Exporter interface {
	ExportOrganization(ctx context.Context, orgID int64, w io.Writer) error
}

// Services are the application services the API exposes
type Services struct {
	Claims       service.ClaimService
	Rules        service.RuleService
	Approvers    service.ApproverConfigService
	Exporter     Exporter
	Orchestrator workflow.Orchestrator
	Directory    port.ApproverDirectory
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger *zap.Logger) *Server {
	router := gin.New()

	s := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestID())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if actor, ok := c.Get(actorKey); ok {
			fields = append(fields, zap.Int64("actor_id", actorFrom(actor).ID))
		}
		s.logger.Info("HTTP request", fields...)
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.services.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.services.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1", h.authenticate)
	{
		api.POST("/claims", h.SubmitClaim)
		api.GET("/claims/mine", h.ListMyClaims)
		api.GET("/claims/team", requireCapability(role.CapViewTeamExpenses), h.ListTeamClaims)
		api.GET("/claims", requireCapability(role.CapViewAllExpenses), h.ListOrganizationClaims)
		api.GET("/claims/export", requireCapability(role.CapViewAllExpenses), h.ExportClaims)
		api.GET("/claims/:id", h.GetClaim)
		api.GET("/claims/:id/audit", h.GetAuditTrail)
		api.GET("/claims/:id/progress", h.GetProgress)

		api.POST("/claims/:id/approve", h.Approve)
		api.POST("/claims/:id/approve/designated", h.ApproveDesignated)
		api.POST("/claims/:id/reject", h.Reject)
		api.POST("/claims/:id/override", h.Override)
		api.POST("/claims/:id/escalate", h.Escalate)
		api.POST("/claims/:id/request-info", h.RequestInfo)
		api.POST("/claims/:id/provide-info", h.ProvideInfo)
		api.POST("/claims/:id/reevaluate", h.Reevaluate)

		api.GET("/approvals/pending", h.ListMyPendingApprovals)
		api.GET("/approvals/all", requireCapability(role.CapViewAllExpenses), h.ListAllPending)

		rules := api.Group("/rules", requireCapability(role.CapConfigureRules))
		{
			rules.POST("", h.CreateRule)
			rules.GET("", h.ListRules)
			rules.GET("/applicable", h.FindApplicableRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.PUT("/:id/sequence", h.SetRuleSequence)
			rules.PUT("/:id/designated-approver", h.SetDesignatedApprover)
			rules.PUT("/:id/percentage", h.SetRequiredPercentage)
			rules.GET("/:id/approvers", h.ListApprovers)
			rules.POST("/:id/approvers", h.AddApprover)
			rules.DELETE("/:id/approvers/:userId", h.RemoveApprover)
		}
		api.PUT("/approvers/:id/sequence", requireCapability(role.CapConfigureRules), h.UpdateApproverSequence)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", s.Address()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
