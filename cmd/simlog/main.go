// simlog - budget-constrained event log simulation and re-identification
// risk scoring for process trees.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/logflow/simlog/pkg/config"
	serrors "github.com/logflow/simlog/pkg/errors"
	"github.com/logflow/simlog/pkg/logging"
	"github.com/logflow/simlog/pkg/telemetry"
	"github.com/logflow/simlog/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
	quiet      bool
)

// Shared state set up before every command.
var (
	cfgManager        = config.NewManager()
	cfg               *config.Config
	logger            *logrus.Logger
	printer           *tui.Printer
	shutdownTelemetry telemetry.ShutdownFunc
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "simlog",
	Short: "Simulate event logs from budget-annotated process trees",
	Long: `simlog annotates a process tree with execution budgets derived from
observed activity frequencies, generates synthetic traces that respect every
budget, exports them as XES or Parquet and scores the re-identification risk
of real and simulated logs.

Configuration is read from /etc/simlog/config.yaml, ~/.simlog/config.yaml,
./.simlog.yaml and --config, then SIMLOG_* environment variables, then flags.`,
	Version:            fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the simlog version",
	// Needs no configuration.
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "simlog %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (merged over the default search paths)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress terminal output other than errors")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if err := cfgManager.Load(configPath); err != nil {
		return err
	}
	cfg = cfgManager.Get()

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger = logging.New(logging.Config{
		Level:  config.LevelName(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	printer = &tui.Printer{Out: cmd.OutOrStdout(), Quiet: quiet}

	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SamplingRatio = cfg.Telemetry.SamplingRatio
	tcfg.ServiceVersion = version
	shutdown, err := telemetry.Setup(cmd.Context(), tcfg)
	if err != nil {
		return err
	}
	shutdownTelemetry = shutdown

	logger.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"configs": cfgManager.GetPaths(),
	}).Debug("Configuration loaded")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if shutdownTelemetry == nil {
		return nil
	}
	err := shutdownTelemetry(context.WithoutCancel(cmd.Context()))
	shutdownTelemetry = nil
	return err
}

// exitCode maps error classes to process exit codes.
func exitCode(err error) int {
	switch {
	case serrors.IsCode(err, serrors.CodeContextCanceled):
		return 130
	case serrors.IsFatal(err), serrors.IsCode(err, serrors.CodeBudgetInconsistency):
		return 2
	default:
		return 1
	}
}
