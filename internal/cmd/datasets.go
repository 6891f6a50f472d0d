package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqora/exportd/internal/observability"
	"github.com/seqora/exportd/pkg/dataset"
	"github.com/seqora/exportd/pkg/fingerprint"
	"github.com/seqora/exportd/pkg/job"
	"github.com/seqora/exportd/pkg/processor"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage dataset export requests",
}

var datasetsDispatchCmd = &cobra.Command{
	Use:   "dispatch <request.yaml>",
	Short: "Resolve a dataset request and queue an export job",
	Long: `Resolve a dataset request against object storage, fingerprint the
resolved contents, and create an export job.

When a previously dispatched dataset already carries the same combined
fingerprint, the request is a no-op: the existing export is current and no
new job is created. A changed fingerprint produces a fresh dataset linked
back to the one it regenerates.

Example:
  exportd datasets dispatch request.yaml
  exportd datasets dispatch request.json --kind CCDL_DATASET`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetsDispatch,
}

var (
	datasetsDispatchKind   string
	datasetsDispatchDryRun bool
)

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsDispatchCmd)

	datasetsDispatchCmd.Flags().StringVar(&datasetsDispatchKind, "kind", string(processor.KindPortalDataset), "Processor kind (PORTAL_DATASET|CCDL_DATASET)")
	datasetsDispatchCmd.Flags().BoolVar(&datasetsDispatchDryRun, "dry-run", false, "Resolve and fingerprint without persisting anything")
}

func runDatasetsDispatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := dataset.Load(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid dataset request", err)
	}

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

	resolver := dataset.NewResolver(storage, store)
	manifest, err := resolver.Resolve(ctx, d)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Dataset resolution failed", err)
	}

	fp, err := fingerprint.Compute(manifest.FingerprintInput(manifest.Readme()))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Fingerprint computation failed", err)
	}
	d.DataHash = fp.Data
	d.MetadataHash = fp.Metadata
	d.ReadmeHash = fp.Readme
	d.CombinedHash = fp.Combined

	observability.CLILogger.Debug("Dataset resolved",
		zap.String("dataset_id", d.ID),
		zap.String("combined_hash", fp.Combined),
		zap.Int("projects", len(d.Projects)))

	existing, err := store.FindDatasetByCombinedHash(ctx, fp.Combined)
	if err != nil {
		return err
	}
	if existing != nil {
		fmt.Printf("Dataset %s already current (combined hash %s), nothing to do\n",
			shortJobID(existing.ID), shortHash(fp.Combined))
		return nil
	}

	if datasetsDispatchDryRun {
		fmt.Printf("Would dispatch dataset %s (combined hash %s)\n",
			shortJobID(d.ID), shortHash(fp.Combined))
		return nil
	}

	// A prior dataset for the same projects and format with a different
	// fingerprint is superseded, not updated in place.
	if prior := findPriorDataset(ctx, store, d); prior != nil {
		d.RegeneratedFrom = prior.ID
	}

	if err := store.SaveDataset(ctx, d); err != nil {
		return err
	}

	registry := processor.NewRegistry()
	sub, err := registry.Submission(processor.Kind(datasetsDispatchKind), d, processor.Params{
		Queue:      cfg.Batch.Queue,
		NamePrefix: cfg.Batch.NamePrefix,
		Env:        cfg.Batch.Env,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot build submission", err)
	}

	j := job.New(d.ID, sub)
	if err := store.CreateJob(ctx, j); err != nil {
		return err
	}

	observability.CLILogger.Info("Dataset dispatched",
		zap.String("dataset_id", d.ID),
		zap.String("job_id", j.ID),
		zap.String("kind", datasetsDispatchKind))

	fmt.Printf("Dispatched dataset %s as job %s\n", shortJobID(d.ID), shortJobID(j.ID))
	return nil
}

// findPriorDataset locates the newest dataset covering the same projects and
// format, used to thread the regenerated_from chain. Lookup failures are
// non-fatal; the chain is informational.
func findPriorDataset(ctx context.Context, store datasetLister, d *dataset.Dataset) *dataset.Dataset {
	prior, err := store.FindLatestDatasetForRequest(ctx, d.Format, d.ProjectIDs())
	if err != nil {
		observability.CLILogger.Warn("Prior dataset lookup failed", zap.Error(err))
		return nil
	}
	return prior
}

type datasetLister interface {
	FindLatestDatasetForRequest(ctx context.Context, format dataset.Format, projectIDs []string) (*dataset.Dataset, error)
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
