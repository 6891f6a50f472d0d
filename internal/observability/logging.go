// Package observability provides the process-wide structured logger.
//
// Commands log through CLILogger so operational output (progress, warnings,
// per-job failures) stays separate from machine-readable stdout output.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the shared logger for command-line entry points.
//
// It defaults to a console logger at info level writing to stderr, so stdout
// remains reserved for JSON/tabular command output.
var CLILogger = mustDefaultLogger()

// Init reconfigures CLILogger from the loaded configuration.
//
// profile selects the encoder: "STRUCTURED" emits JSON, anything else emits
// the console encoding.
func Init(level string, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !strings.EqualFold(strings.TrimSpace(profile), "STRUCTURED") {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	CLILogger = logger
	return nil
}

// Sync flushes buffered log entries. Safe to call on process exit.
func Sync() {
	_ = CLILogger.Sync()
}

func mustDefaultLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
