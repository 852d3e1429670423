package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdstack/conductor/pkg/client"
)

const apiTimeout = 30 * time.Second

func newClient(flags *GlobalFlags) *client.Client {
	cfg := client.DefaultConfig()
	if flags.APIUrl != "" {
		cfg.BaseURL = flags.APIUrl
	}
	return client.New(cfg)
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show the processes, sessions and monitors of a running daemon.

Examples:
  conductor status
  conductor status --api-url=http://remote:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			report, err := newClient(globalFlags).Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("sync:    %s\n", report.URLs.Sync)
			fmt.Printf("runtime: %s\n", report.URLs.Runtime)
			fmt.Println("processes:")
			for _, p := range report.Processes {
				line := fmt.Sprintf("  %-24s %-8s", p.Name, p.State)
				if p.PID > 0 {
					line += fmt.Sprintf(" pid=%d", p.PID)
				}
				if p.Reason != "" {
					line += " (" + p.Reason + ")"
				}
				fmt.Println(line)
			}
			fmt.Println("sessions:")
			for _, s := range report.Sessions {
				mode := "shared"
				if s.Runtime.Dedicated {
					mode = fmt.Sprintf("dedicated port=%d", s.Runtime.Port)
				}
				fmt.Printf("  %-24s %s runtime=%s\n", s.Doc, mode, s.Runtime.URL)
			}
			return nil
		},
	}
}

func createSessionCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage document sessions",
	}

	var mode string
	create := &cobra.Command{
		Use:   "create <doc>",
		Short: "Create a session for a document",
		Long: `Create a session, or switch its runtime mode if one already exists.

Examples:
  conductor session create notes.md
  conductor session create notes.md --mode=dedicated`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			s, err := newClient(globalFlags).CreateSession(ctx, args[0], mode)
			if err != nil {
				return err
			}
			fmt.Printf("session %s: sync=%s runtime=%s dedicated=%v\n",
				s.Doc, s.Sync, s.Runtime.URL, s.Runtime.Dedicated)
			return nil
		},
	}
	create.Flags().StringVar(&mode, "mode", "shared", "runtime mode: shared or dedicated")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			sessions, err := newClient(globalFlags).Sessions(ctx)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%-24s dedicated=%v runtime=%s monitor=%v\n",
					s.Doc, s.Runtime.Dedicated, s.Runtime.URL, s.Monitor.Running)
			}
			return nil
		},
	}

	destroy := &cobra.Command{
		Use:   "destroy <doc>",
		Short: "Destroy a document's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			return newClient(globalFlags).DestroySession(ctx, args[0])
		},
	}

	cmd.AddCommand(create, list, destroy)
	return cmd
}

func createMonitorCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage document monitors",
	}

	start := &cobra.Command{
		Use:   "start <doc>",
		Short: "Start a monitor for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			return newClient(globalFlags).StartMonitor(ctx, args[0])
		},
	}

	stop := &cobra.Command{
		Use:   "stop <doc>",
		Short: "Stop a document's monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			return newClient(globalFlags).StopMonitor(ctx, args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List monitored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			docs, err := newClient(globalFlags).Monitors(ctx)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Println(d)
			}
			return nil
		},
	}

	cmd.AddCommand(start, stop, list)
	return cmd
}

func createLogsCommand(globalFlags *GlobalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <process>",
		Short: "Show recent output of a supervised process",
		Long: `Show recent output lines captured from a supervised process.

Examples:
  conductor logs sync
  conductor logs monitor:notes.md --lines=50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			defer cancel()
			logs, err := newClient(globalFlags).Logs(ctx, args[0], lines)
			if err != nil {
				return err
			}
			for _, l := range logs.Lines {
				fmt.Println(l)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of recent lines")
	return cmd
}
