package container

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/rules"
	"github.com/expenseflow/approval-engine/internal/application/service"
	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/config"
	"github.com/expenseflow/approval-engine/internal/domain/event"
	"github.com/expenseflow/approval-engine/internal/infrastructure/currency"
	"github.com/expenseflow/approval-engine/internal/infrastructure/directory"
	"github.com/expenseflow/approval-engine/internal/infrastructure/metrics"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/expenseflow/approval-engine/internal/infrastructure/worker"
	"github.com/expenseflow/approval-engine/pkg/database"
)

// DatabaseBundle holds the raw connection and the transaction-aware wrapper over it
type DatabaseBundle struct {
	Raw *database.DB
	DB  *sqlite.DB
}

// ProvideDatabase opens the database and applies pending migrations
func ProvideDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	raw, err := database.New(databaseConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(raw, logger).Run(database.Migrations())
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{Raw: raw, DB: sqlite.NewDB(raw.DB, logger)}, nil
}

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Organizations port.OrganizationRepository
	Users         port.UserRepository
	Claims        port.ClaimRepository
	Steps         port.StepRepository
	Rules         port.RuleRepository
	Approvers     port.ApproverConfigRepository
	Audit         port.AuditRepository
}

// ProvideRepositories creates all repositories over db
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Organizations: repository.NewOrganizationRepository(db, logger),
		Users:         repository.NewUserRepository(db, logger),
		Claims:        repository.NewClaimRepository(db, logger),
		Steps:         repository.NewStepRepository(db, logger),
		Rules:         repository.NewRuleRepository(db, logger),
		Approvers:     repository.NewApproverConfigRepository(db, logger),
		Audit:         repository.NewAuditRepository(db, logger),
	}
}

// ProvideMetrics creates a registry carrying the runtime collectors and the workflow metrics
func ProvideMetrics() (*prometheus.Registry, *metrics.WorkflowMetrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.NewWorkflowMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, m, nil
}

// eventTypes are the events logged by the dispatcher's event log handler
var eventTypes = []event.Type{
	event.TypeClaimSubmitted,
	event.TypeClaimRouted,
	event.TypeClaimApproved,
	event.TypeClaimPartial,
	event.TypeClaimCFOApproved,
	event.TypeClaimRejected,
	event.TypeClaimEscalated,
	event.TypeClaimOverridden,
	event.TypeInfoRequested,
	event.TypeStepReminderDue,
	event.TypeRuleConfigChanged,
}

// ProvideDispatcher creates the event dispatcher and subscribes the event log
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(logger))

	eventLog := logger.Named("events")
	for _, t := range eventTypes {
		d.SubscribeNamed(t, "event_log", func(_ context.Context, evt *event.Event) error {
			eventLog.Info("Workflow event",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type.String()),
				zap.Int64("claim_id", evt.ClaimID),
				zap.Int64("actor_id", evt.ActorID),
				zap.String("correlation_id", evt.CorrelationID),
				zap.Any("payload", evt.Payload))
			return nil
		})
	}
	return d
}

// DirectoryBundle holds the user directory and the stage registry over it
type DirectoryBundle struct {
	Directory *directory.Directory
	Registry  *directory.Registry
}

// ProvideDirectory creates the approver directory and registry
func ProvideDirectory(users port.UserRepository, cfg config.WorkflowConfig, logger *zap.Logger) *DirectoryBundle {
	dir := directory.NewDirectory(users, logger)
	return &DirectoryBundle{
		Directory: dir,
		Registry:  directory.NewRegistry(dir, cfg.PreferDedicatedRoles, logger),
	}
}

// ProvideConverter creates the static exchange rate converter
func ProvideConverter(cfg config.CurrencyConfig, logger *zap.Logger) (port.CurrencyConverter, error) {
	rates, err := currency.ParseRates(cfg.Rates)
	if err != nil {
		return nil, err
	}
	return currency.NewStaticConverter(rates, logger)
}

// WorkflowDeps holds the dependencies of the orchestrator
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Directory  *DirectoryBundle
	Evaluator  *rules.Evaluator
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    port.WorkflowMetrics
	Config     config.WorkflowConfig
	Logger     *zap.Logger
}

// ProvideOrchestrator creates the workflow orchestrator
func ProvideOrchestrator(deps *WorkflowDeps) (workflow.Orchestrator, error) {
	wfCfg, err := workflowConfig(deps.Config)
	if err != nil {
		return nil, err
	}

	return workflow.NewOrchestrator(
		deps.Repos.Claims,
		deps.Repos.Steps,
		deps.Repos.Rules,
		deps.Repos.Audit,
		deps.Directory.Directory,
		deps.Directory.Registry,
		deps.Evaluator,
		deps.TxManager,
		deps.Logger.Named("workflow"),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithMetrics(deps.Metrics),
		workflow.WithConfig(wfCfg),
	), nil
}

// ServiceBundle groups the application services
type ServiceBundle struct {
	Claims    service.ClaimService
	Rules     service.RuleService
	Approvers service.ApproverConfigService
	Exporter  *service.ClaimExporter
}

// ServiceDeps holds the dependencies of the application services
type ServiceDeps struct {
	Repos        *RepositoryBundle
	Directory    *DirectoryBundle
	Converter    port.CurrencyConverter
	Evaluator    *rules.Evaluator
	Orchestrator workflow.Orchestrator
	TxManager    port.TransactionManager
	Dispatcher   dispatcher.Dispatcher
	Logger       *zap.Logger
}

// ProvideServices creates the application services
func ProvideServices(deps *ServiceDeps) *ServiceBundle {
	logger := deps.Logger.Named("service")
	return &ServiceBundle{
		Claims: service.NewClaimService(
			deps.Repos.Claims,
			deps.Repos.Steps,
			deps.Repos.Organizations,
			deps.Repos.Audit,
			deps.Directory.Directory,
			deps.Converter,
			deps.Orchestrator,
			deps.TxManager,
			deps.Dispatcher,
			logger,
		),
		Rules: service.NewRuleService(
			deps.Repos.Rules,
			deps.Repos.Approvers,
			deps.Directory.Directory,
			deps.Evaluator,
			deps.TxManager,
			deps.Dispatcher,
			logger,
		),
		Approvers: service.NewApproverConfigService(
			deps.Repos.Approvers,
			deps.Repos.Rules,
			deps.Directory.Directory,
			deps.TxManager,
			logger,
		),
		Exporter: service.NewClaimExporter(deps.Repos.Claims, deps.Repos.Steps, logger),
	}
}

// WorkerDeps holds the dependencies of the background workers
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Directory  *DirectoryBundle
	Dispatcher dispatcher.Dispatcher
	Metrics    port.WorkflowMetrics
	Config     config.ReminderConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager with the enabled workers registered
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	logger := deps.Logger.Named("worker")
	manager := worker.NewManager(logger)

	if deps.Config.Enabled {
		manager.Register(worker.NewReminderScanner(
			deps.Repos.Steps,
			deps.Repos.Claims,
			deps.Directory.Directory,
			worker.NewLogNotifier(logger),
			deps.Dispatcher,
			reminderConfig(deps.Config),
			logger,
			worker.WithReminderMetrics(deps.Metrics),
		))
	}
	return manager
}
