// Package cmd implements the exportd command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqora/exportd/internal/config"
	"github.com/seqora/exportd/internal/observability"
)

// versionInfo is stamped at build time via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// cfg is resolved once before any subcommand runs.
var cfg *config.Config

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "exportd",
	Short: "Dataset export job orchestration",
	Long: `exportd orchestrates dataset export jobs for the data portal.

It resolves dataset requests against object storage, fingerprints the
resolved contents, and drives export jobs through an external batch-compute
service. The orchestration commands (jobs submit, jobs sync, jobs
terminate, lock sync) are designed to be invoked periodically by an
external scheduler; each run processes the current snapshot and exits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		if err := observability.Init(level, cfg.Logging.Profile); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging level (debug|info|warn|error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("exportd %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// Execute runs the CLI. Errors are logged here so main stays minimal.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
