package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqora/exportd/internal/observability"
	"github.com/seqora/exportd/pkg/job"
	"github.com/seqora/exportd/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage export jobs",
	Long: `Manage export job records and drive them through the external
compute service.

The submit, sync, and terminate subcommands are batch operations over the
current job table snapshot; run them periodically from an external
scheduler.`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit all created jobs to the compute service",
	RunE:  runJobsSubmit,
}

var jobsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile submitted jobs with remote status",
	RunE:  runJobsSync,
}

var jobsTerminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Terminate all submitted jobs",
	RunE:  runJobsTerminate,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List export jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var (
	jobsTerminateReason string
	jobsTerminateRetry  bool
	jobsTerminateID     string
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsSyncCmd)
	jobsCmd.AddCommand(jobsTerminateCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsTerminateCmd.Flags().StringVar(&jobsTerminateReason, "reason", "", "Termination reason (required)")
	jobsTerminateCmd.Flags().BoolVar(&jobsTerminateRetry, "retry", false, "Create retry jobs for the terminated set")
	jobsTerminateCmd.Flags().StringVar(&jobsTerminateID, "job", "", "Terminate a single job instead of all submitted jobs")
	_ = jobsTerminateCmd.MarkFlagRequired("reason")

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("state", "", "Filter by state (CREATED|SUBMITTED|SUCCEEDED|FAILED|TERMINATED)")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsSubmit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	gw, err := newGateway(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach compute service", err)
	}

	result, err := newScheduler(store, gw).SubmitCreated(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Submission pass failed", err)
	}

	observability.CLILogger.Info("Submission pass complete",
		zap.Int("submitted", len(result.Submitted)),
		zap.Int("failed", len(result.Failed)))

	if len(result.Submitted) == 0 && len(result.Failed) == 0 {
		fmt.Println("No jobs pending submission")
		return nil
	}
	fmt.Printf("Submitted %d job(s), %d failure(s)\n", len(result.Submitted), len(result.Failed))
	if len(result.Failed) > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Some submissions failed",
			fmt.Errorf("failed=%d", len(result.Failed)))
	}
	return nil
}

func runJobsSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	gw, err := newGateway(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach compute service", err)
	}

	result, err := newScheduler(store, gw).BulkSyncState(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Sync pass failed", err)
	}

	observability.CLILogger.Info("Sync pass complete",
		zap.Int("checked", result.Checked),
		zap.Int("updated", len(result.Updated)),
		zap.Int("completed", len(result.Completed)))

	fmt.Printf("Checked %d job(s): %d updated, %d completed\n",
		result.Checked, len(result.Updated), len(result.Completed))
	return nil
}

func runJobsTerminate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if strings.TrimSpace(jobsTerminateReason) == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing --reason", fmt.Errorf("reason is required"))
	}

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	gw, err := newGateway(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Cannot reach compute service", err)
	}
	sched := newScheduler(store, gw)

	var terminated []job.Job
	if jobsTerminateID != "" {
		resolved, err := resolveJobID(ctx, store, jobsTerminateID)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot resolve job id", err)
		}
		j, err := sched.TerminateJob(ctx, resolved, jobsTerminateReason, jobsTerminateRetry)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Termination failed", err)
		}
		terminated = []job.Job{*j}
	} else {
		terminated, err = sched.TerminateProcessing(ctx, jobsTerminateReason, jobsTerminateRetry)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Termination pass failed", err)
		}
	}

	fmt.Printf("Terminated %d job(s)\n", len(terminated))

	if jobsTerminateRetry && len(terminated) > 0 {
		retries, err := sched.CreateRetryJobs(ctx, terminated)
		fmt.Printf("Created %d retry job(s)\n", len(retries))
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Some retries were not created", err)
		}
	}
	return nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	stateFilter, _ := cmd.Flags().GetString("state")

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	var jobs []job.Job
	if stateFilter != "" {
		jobs, err = store.ListJobsByState(ctx, job.State(strings.ToUpper(stateFilter)))
	} else {
		jobs, err = store.ListJobs(ctx)
	}
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tDATASET\tATTEMPT\tSTATE\tREMOTE\tSUBMITTED\tCOMPLETED")
	for _, j := range jobs {
		remote := j.BatchStatus
		if remote == "" {
			remote = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			shortJobID(j.ID),
			shortJobID(j.DatasetID),
			j.Attempt,
			j.State,
			remote,
			formatOptionalTime(j.SubmittedAt),
			formatOptionalTime(j.CompletedAt),
		)
	}

	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	store, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open job store", err)
	}
	defer func() { _ = store.Close() }()

	resolvedID, err := resolveJobID(ctx, store, jobID)
	if err != nil {
		return err
	}

	j, err := store.GetJob(ctx, resolvedID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", j.ID)
	_, _ = fmt.Fprintf(os.Stdout, "dataset_id=%s\n", j.DatasetID)
	_, _ = fmt.Fprintf(os.Stdout, "attempt=%d\n", j.Attempt)
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", j.State)
	if j.BatchJobID != "" {
		_, _ = fmt.Fprintf(os.Stdout, "batch_job_id=%s\n", j.BatchJobID)
	}
	if j.BatchStatus != "" {
		_, _ = fmt.Fprintf(os.Stdout, "batch_status=%s\n", j.BatchStatus)
	}
	if j.FailureReason != "" {
		_, _ = fmt.Fprintf(os.Stdout, "failure_reason=%s\n", j.FailureReason)
	}
	if j.CriticalError {
		_, _ = fmt.Fprintf(os.Stdout, "critical_error=true\n")
	}
	if j.SubmittedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "submitted_at=%s\n", j.SubmittedAt.UTC().Format(time.RFC3339))
	}
	if j.CompletedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "completed_at=%s\n", j.CompletedAt.UTC().Format(time.RFC3339))
	}
	if j.TerminatedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "terminated_at=%s\n", j.TerminatedAt.UTC().Format(time.RFC3339))
	}

	return nil
}

func shortJobID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// resolveJobID accepts a full id or a table-friendly short prefix.
func resolveJobID(ctx context.Context, store *jobstore.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	// Exact match first.
	if _, err := store.GetJob(ctx, input); err == nil {
		return input, nil
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.ID, input) {
			matches = append(matches, j.ID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}
