// Package batch defines the gateway boundary to the external batch-compute
// service that runs submitted export work.
//
// The core depends only on the Gateway contract; the AWS implementation
// lives in the awsbatch subpackage and tests use the in-memory Fake.
package batch

import "context"

// Remote status strings reported by the compute service. Only the terminal
// two drive local state transitions; the rest are recorded verbatim.
const (
	StatusSubmitted = "SUBMITTED"
	StatusPending   = "PENDING"
	StatusRunnable  = "RUNNABLE"
	StatusStarting  = "STARTING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// ContainerOverrides is the per-submission container tuning forwarded to the
// compute service. It must round-trip through persistence unchanged so a
// retry reproduces the exact remote behavior of the attempt it replaces.
type ContainerOverrides struct {
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	MemoryMiB   int32             `json:"memory_mib,omitempty"`
	VCPUs       int32             `json:"vcpus,omitempty"`
}

// Submission is the exact payload sent to the compute service.
type Submission struct {
	Name       string             `json:"name"`
	Queue      string             `json:"queue"`
	Definition string             `json:"definition"`
	Overrides  ContainerOverrides `json:"container_overrides"`
}

// Gateway abstracts the external compute service.
//
// Implementations return errors for transport or service failures; callers
// are expected to treat those as recoverable per-job outcomes, never as
// batch-aborting conditions.
type Gateway interface {
	// Submit registers the work remotely and returns the external job id.
	Submit(ctx context.Context, sub Submission) (string, error)

	// Terminate asks the service to stop the remote job.
	Terminate(ctx context.Context, externalID, reason string) error

	// Describe returns current remote status per external job id, in bulk to
	// bound round trips. IDs unknown to the service are absent from the map.
	Describe(ctx context.Context, externalIDs []string) (map[string]string, error)
}

// TerminalStatus reports whether a remote status string is terminal.
func TerminalStatus(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}
