package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// ClientFlags holds flags for commands that talk to a running
// orchestrator over the control API.
type ClientFlags struct {
	Name       string
	APIUrl     string
	APITimeout time.Duration
}

// JournalFlags holds flags for the journal command
type JournalFlags struct {
	Limit int
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &ClientFlags{}
	stopFlags := &ClientFlags{}
	journalFlags := &JournalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStatusCommand(statusFlags),
		createStopCommand(stopFlags),
		createDoctorCommand(globalFlags),
		createJournalCommand(globalFlags, journalFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command. Running it starts the
// stack; the optional positional argument selects the mode.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "stackrun [all|backend|frontend|docker]",
		Short: "Start and supervise the local service stack",
		Long: `Stackrun starts the long-running services of the analyzer stack for
one mode, verifies each service's health endpoint before starting the
next, and tears everything down on Ctrl-C or when a service dies.

Examples:
  stackrun                      # start everything (mode "all")
  stackrun backend              # start only the backend
  stackrun docker --config=stackrun.toml
  stackrun status               # query a running orchestrator
  stackrun stop --name=backend  # stop one service remotely`,
		ValidArgs: []string{"all", "backend", "frontend", "docker"},
		Args:      cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStack(flags, args)
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createStatusCommand creates the status subcommand
func createStatusCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status from a running orchestrator",
		Long: `Query the control API of an active run and print service statuses.
The run must have been started with [api] listen set (or STACKRUN_API_ADDR).

Examples:
  stackrun status
  stackrun status --name=backend
  stackrun status --api-url=http://127.0.0.1:7070`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Name, "name", "", "show one service instead of all")
	addAPIFlags(cmd, flags)

	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(flags *ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a service, or the whole run, over the control API",
		Long: `Ask a running orchestrator to stop one service, or every service when
no name is given. Stopping everything ends the run cleanly.

Examples:
  stackrun stop --name=frontend
  stackrun stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(*flags)
		},
	}

	cmd.Flags().StringVar(&flags.Name, "name", "", "service to stop (empty stops the whole run)")
	addAPIFlags(cmd, flags)

	return cmd
}

// createDoctorCommand creates the doctor subcommand
func createDoctorCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external tools the stack needs are installed",
		Long: `Look up every registered service's required tool on PATH and print one
row per service. Exits non-zero when anything is missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(globalFlags)
		},
	}
}

// createJournalCommand creates the journal subcommand
func createJournalCommand(globalFlags *GlobalFlags, flags *JournalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print recent run and service lifecycle events",
		Long: `Read the configured journal store directly and print the most recent
entries, newest first. Works without a running orchestrator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(globalFlags, flags)
		},
	}

	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "maximum entries to print")

	return cmd
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stackrun version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("stackrun " + version)
		},
	}
}

func addAPIFlags(cmd *cobra.Command, flags *ClientFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "control API base URL (default "+defaultAPIUrl+")")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
