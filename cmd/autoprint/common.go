package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autoprint/autoprint/internal/config"
	"github.com/autoprint/autoprint/internal/logging"
	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/readiness"
)

// fatal prints err and exits with status 1.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// loadConfig reads the configuration with cmd's flags applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. The closer releases the log
// file, if any.
func newLogger(cfg *config.Config, prefix string) (*logging.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	w, closer := logging.Writer(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return logging.New(prefix, w, level), closer, nil
}

func newSubsystem(cfg *config.Config) (printing.Subsystem, error) {
	return printing.NewSubsystem(cfg.Printer.Backend, printing.Options{
		Timeout: cfg.Printer.Timeout,
		Host:    cfg.Printer.Host,
		Port:    cfg.Printer.Port,
		User:    cfg.Printer.User,
	})
}

func newDispatcher(cfg *config.Config) (*printing.Dispatcher, error) {
	sub, err := newSubsystem(cfg)
	if err != nil {
		return nil, err
	}
	return printing.NewDispatcher(sub, cfg.Printer.Name, cfg.Printer.RepeatCopies)
}

func newDetector(cfg *config.Config) (*readiness.Detector, error) {
	return readiness.New(readiness.Config{
		LockInterval:    cfg.Readiness.LockInterval,
		ContentInterval: cfg.Readiness.ContentInterval,
		ContentAttempts: cfg.Readiness.ContentAttempts,
	}, readiness.FileLocker{}, readiness.PDFLoader{})
}
