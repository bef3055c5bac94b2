package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/pkg/config"
	"github.com/ibflow/ingestd/pkg/logger"
)

// bootstrap loads config and builds the logger every subcommand needs,
// the CLI positional level argument overriding the INI default.
func bootstrap() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := logLevelArg
	if level == "" {
		level = cfg.Logging.Level
	}
	lvl, err := logger.ParseCLILevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	log := logger.New(&cfg.Logging, lvl)
	return cfg, log, nil
}

// waitForSignal blocks until SIGINT or SIGTERM (spec.md §6), grounded
// in the teacher's commands/server.go signal-handling shape.
func waitForSignal(log *logrus.Logger) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	log.WithField("signal", sig.String()).Info("shutdown signal received")
}
