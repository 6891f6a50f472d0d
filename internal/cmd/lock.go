package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqora/exportd/internal/observability"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage project regeneration locks",
}

var lockSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Consume the remote lock manifest",
	Long: `Download the remote lock manifest, persist the lock flag for every
listed project, and atomically clear the manifest. An empty manifest is a
no-op. Run periodically alongside the job passes.`,
	RunE: runLockSync,
}

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockSyncCmd)
}

func runLockSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	storage, err := newStorage(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach object storage", err)
	}
	defer func() { _ = storage.Close() }()

	locked, err := newLockCoordinator(storage, store).LockProjects(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Lock pass failed", err)
	}

	if len(locked) == 0 {
		fmt.Println("Lock manifest empty, nothing to do")
		return nil
	}

	observability.CLILogger.Info("Lock pass complete",
		zap.Int("locked", len(locked)))
	fmt.Printf("Locked %d project(s)\n", len(locked))
	for _, id := range locked {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
