package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdstack/conductor/internal/config"
	"github.com/mdstack/conductor/internal/logger"
	"github.com/mdstack/conductor/internal/metrics"
	"github.com/mdstack/conductor/internal/orchestrator"
	"github.com/mdstack/conductor/internal/server"
)

// ServeFlags holds serve-specific flags; each overrides the config file.
type ServeFlags struct {
	Listen   string
	Monitors []string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the conductor daemon",
		Long: `Start the daemon: bring up the managed base services, then serve the
HTTP API until interrupted.

Examples:
  conductor serve
  conductor serve conductor.toml
  conductor serve --listen=:9090 --monitor=notes.md --monitor=todo.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath, serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringArrayVar(&serveFlags.Monitors, "monitor", nil, "document to start a monitor for at boot (repeatable)")
	return cmd
}

func runServe(configPath string, flags *ServeFlags) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}
	if flags.Listen != "" {
		cfg.HTTPAddr = flags.Listen
	}

	logger.Setup(cfg.LogLevel)
	if err := metrics.RegisterDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	orch, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	if err := orch.Start(); err != nil {
		return err
	}
	for _, doc := range flags.Monitors {
		if !orch.Sessions().StartMonitor(doc) {
			fmt.Printf("Warning: monitor for %s did not start\n", doc)
		}
	}

	srv := server.NewServer(cfg.HTTPAddr, "", orch)
	fmt.Printf("Starting conductor server on %s\n", cfg.HTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	orch.Stop()
	return nil
}
