// Package container wires the approval engine's components and owns their lifecycle.
package container

import (
	"fmt"

	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/config"
	"github.com/expenseflow/approval-engine/internal/infrastructure/worker"
	httpapi "github.com/expenseflow/approval-engine/internal/interfaces/http"
	"github.com/expenseflow/approval-engine/pkg/database"
)

// workflowConfig converts the loaded thresholds into orchestrator settings
func workflowConfig(cfg config.WorkflowConfig) (workflow.Config, error) {
	highValue, err := cfg.HighValue()
	if err != nil {
		return workflow.Config{}, fmt.Errorf("workflow.high_value_threshold: %w", err)
	}
	director, err := cfg.Director()
	if err != nil {
		return workflow.Config{}, fmt.Errorf("workflow.director_threshold: %w", err)
	}

	return workflow.Config{
		HighValueThreshold:        highValue,
		DirectorThreshold:         director,
		DefaultRequiredPercentage: cfg.DefaultRequiredPercentage,
		OverrideSequence:          cfg.OverrideSequence,
		LegacyEscalationLogStep:   cfg.LegacyEscalationLogStep,
	}, nil
}

func databaseConfig(cfg config.DatabaseConfig) database.Config {
	return database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

func reminderConfig(cfg config.ReminderConfig) worker.ReminderConfig {
	return worker.ReminderConfig{
		Interval:     cfg.Interval,
		ScanInterval: cfg.ScanInterval,
		BatchSize:    cfg.BatchSize,
	}
}

func serverConfig(cfg config.ServerConfig) httpapi.ServerConfig {
	return httpapi.ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}
