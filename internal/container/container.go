package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/rules"
	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/config"
	"github.com/expenseflow/approval-engine/internal/infrastructure/metrics"
	"github.com/expenseflow/approval-engine/internal/infrastructure/worker"
	httpapi "github.com/expenseflow/approval-engine/internal/interfaces/http"
)

// Container owns every component of the engine. Start initializes them in
// dependency order and Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	database     *DatabaseBundle
	repositories *RepositoryBundle
	directory    *DirectoryBundle
	converter    port.CurrencyConverter

	registry     *prometheus.Registry
	metrics      *metrics.WorkflowMetrics
	dispatcher   dispatcher.Dispatcher
	orchestrator workflow.Orchestrator
	services     *ServiceBundle
	server       *httpapi.Server
	workers      *worker.Manager

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of one component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg; call Start to build the components
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{config: cfg, logger: logger}, nil
}

// Start builds all components and starts the background workers. A failed Start
// releases what it built and leaves the container closed.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	fail := func(stage string, err error) error {
		c.teardown()
		c.closed.Store(true)
		return fmt.Errorf("failed to initialize %s: %w", stage, err)
	}

	if err := c.initDatabase(); err != nil {
		return fail("database", err)
	}
	if err := c.initInfrastructure(); err != nil {
		return fail("infrastructure", err)
	}
	if err := c.initApplication(); err != nil {
		return fail("application", err)
	}
	c.initServer()
	if err := c.initWorkers(); err != nil {
		return fail("workers", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close stops the workers, drains the dispatcher and closes the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	errs := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if errs > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", errs))
		return fmt.Errorf("container closed with %d errors", errs)
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been built so far and returns the number of failures
func (c *Container) teardown() int {
	errs := 0
	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs++
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs++
		}
	}
	if c.database != nil {
		if err := c.database.Raw.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs++
		}
	}
	return errs
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns the health of the database, the workers and the dispatcher
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.database.Raw.PingContext(ctx); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers == nil {
		set("workers", ComponentHealth{Message: "not initialized"})
	} else {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		})
	}

	if c.dispatcher == nil {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	} else {
		set("dispatcher", ComponentHealth{Healthy: true})
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	c.repositories = ProvideRepositories(bundle.DB, c.logger)
	c.logger.Info("Database initialized")
	return nil
}

func (c *Container) initInfrastructure() error {
	c.directory = ProvideDirectory(c.repositories.Users, c.config.Workflow, c.logger)

	converter, err := ProvideConverter(c.config.Currency, c.logger)
	if err != nil {
		return err
	}
	c.converter = converter

	c.registry, c.metrics, err = ProvideMetrics()
	if err != nil {
		return err
	}

	c.dispatcher = ProvideDispatcher(c.logger.Named("dispatcher"))
	c.logger.Info("Infrastructure initialized")
	return nil
}

func (c *Container) initApplication() error {
	evaluator, err := rules.NewEvaluator(c.logger.Named("rules"),
		rules.WithCountSkippedSteps(c.config.Workflow.CountSkippedSteps))
	if err != nil {
		return err
	}

	c.orchestrator, err = ProvideOrchestrator(&WorkflowDeps{
		Repos:      c.repositories,
		Directory:  c.directory,
		Evaluator:  evaluator,
		TxManager:  c.database.DB,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Config:     c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = ProvideServices(&ServiceDeps{
		Repos:        c.repositories,
		Directory:    c.directory,
		Converter:    c.converter,
		Evaluator:    evaluator,
		Orchestrator: c.orchestrator,
		TxManager:    c.database.DB,
		Dispatcher:   c.dispatcher,
		Logger:       c.logger,
	})
	c.logger.Info("Application services initialized")
	return nil
}

func (c *Container) initServer() {
	c.server = httpapi.NewServer(serverConfig(c.config.Server), httpapi.Services{
		Claims:       c.services.Claims,
		Rules:        c.services.Rules,
		Approvers:    c.services.Approvers,
		Exporter:     c.services.Exporter,
		Orchestrator: c.orchestrator,
		Directory:    c.directory.Directory,
		Gatherer:     c.registry,
	}, c.logger.Named("http"))
}

func (c *Container) initWorkers() error {
	c.workers = ProvideWorkers(&WorkerDeps{
		Repos:      c.repositories,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Config:     c.config.Reminder,
		Logger:     c.logger,
	})
	if err := c.workers.StartAll(c.ctx); err != nil {
		return err
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))
	return nil
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns the application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Orchestrator returns the workflow orchestrator
func (c *Container) Orchestrator() workflow.Orchestrator {
	return c.orchestrator
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Server returns the HTTP server; it is built by Start but not started
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Workers returns the worker manager
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Registry returns the metrics registry served at /metrics
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}
