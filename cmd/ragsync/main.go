package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/ragsync/internal/config"
	"github.com/alexjbarnes/ragsync/internal/logging"
	"github.com/alexjbarnes/ragsync/internal/manager"
	"github.com/alexjbarnes/ragsync/internal/ragflow"
	"github.com/alexjbarnes/ragsync/internal/scanner"
	"github.com/alexjbarnes/ragsync/internal/state"
	"github.com/alexjbarnes/ragsync/internal/store"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("ragsync starting",
		slog.String("version", Version),
		slog.String("root", cfg.RootDir),
		slog.String("interval", cfg.SyncInterval.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer st.Close()

	session, err := state.Load(cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	defer session.Close()

	client := ragflow.NewClient(cfg.BaseURL, cfg.KBID, nil)
	sc := scanner.New(cfg.RootDir, cfg.Extensions, cfg.HashAlgorithm, st, logger)

	mgr := manager.New(st, sc, client, session, manager.Config{
		Email:           cfg.Email,
		Password:        cfg.Password,
		Interval:        cfg.SyncInterval,
		ParseDocuments:  cfg.ParseDocuments,
		PollParseStatus: cfg.PollParseStatus,
	}, logger)

	if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("ragsync stopped")

	return nil
}
