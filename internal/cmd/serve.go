package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqora/exportd/internal/observability"
	"github.com/seqora/exportd/internal/server"
	"github.com/seqora/exportd/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operational status server",
	Long: `Run the HTTP status server exposing health probes, version
information, and a job queue summary. This is an operational surface for
monitoring, not the portal API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("jobstore", handlers.StoreHealthChecker(store))

	server.Version = versionInfo.Version
	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.WithJobStore(store))

	errCh := make(chan error, 1)
	go func() {
		observability.CLILogger.Info("Status server listening",
			zap.String("addr", srv.Addr()))
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Status server failed", err)
		}
		return nil
	case sig := <-sigCh:
		observability.CLILogger.Info("Shutting down status server",
			zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
