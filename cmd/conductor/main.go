package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(globalFlags),
		createSessionCommand(globalFlags),
		createMonitorCommand(globalFlags),
		createLogsCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "conductor",
		Short: "Document environment orchestrator",
		Long: `Conductor supervises the processes behind a collaborative document
environment: the sync server, the shared runtime, per-document monitors and
dedicated runtimes.

Examples:
  conductor serve                          # Start the daemon with defaults
  conductor serve --config=conductor.toml  # Start with a config file
  conductor status                         # Show processes and sessions
  conductor session create mydoc.md --mode=dedicated`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8080)")
	return root
}
