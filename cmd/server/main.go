package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/config"
	"github.com/expenseflow/approval-engine/internal/container"
	"github.com/expenseflow/approval-engine/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting approval engine",
		zap.String("address", cfg.Server.Addr()),
		zap.String("database", cfg.Database.Path))

	if err := run(cfg, logger); err != nil {
		logger.Error("Approval engine stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Approval engine exited")
}

// run serves until SIGINT or SIGTERM, then stops the server before the container
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	serveErr := c.Server().Start(ctx)
	if serveErr == nil {
		logger.Info("Shutting down")
	}

	if err := c.Close(); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
