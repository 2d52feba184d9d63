// Command healthledger runs a ledger node: it opens the chain, serves the
// operator status surface and shuts down cleanly on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"healthledger/api/server"
	"healthledger/core/config"
	"healthledger/core/ledger"
	"healthledger/core/logging"
	"healthledger/core/storage"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "healthledger",
		Short:         "Tamper-evident ledger node for medical record fingerprints",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       server.NodeVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "healthledger:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("starting healthledger node",
		"version", server.NodeVersion(),
		"store", cfg.StorePath,
		"backend", cfg.Backend,
		"difficulty", cfg.Difficulty)

	l, err := ledger.Open(cfg, ledger.WithLogger(logger))
	if errors.Is(err, storage.ErrCorruptedStore) {
		return fmt.Errorf("%w; set on_corrupt: reinit to quarantine it and start a new chain", err)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Error("ledger close failed", "error", err)
		}
	}()

	info := l.ChainInfo()
	logger.Info("ledger open", "length", info.Length, "valid", info.IsValid, "tip", info.LatestHash)

	srv := server.NewServer(l, cfg.StatusAddr, filepath.Dir(cfg.StorePath), logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown", "error", err)
	}
	return nil
}

// newLogger logs to stdout, and to cfg.LogFile as well when set.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LogFile == "" {
		return logging.New(os.Stdout, level), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(io.MultiWriter(os.Stdout, f), level), func() { _ = f.Close() }, nil
}
