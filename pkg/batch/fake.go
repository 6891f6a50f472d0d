package batch

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Gateway for tests.
//
// Submitted jobs start in StatusSubmitted; tests drive remote progress with
// SetStatus. Error hooks let tests script per-call failures.
type Fake struct {
	mu       sync.Mutex
	nextID   int
	statuses map[string]string
	subs     map[string]Submission
	reasons  map[string]string

	// SubmitErr, when set, fails Submit for submissions whose name it maps.
	SubmitErr map[string]error

	// TerminateErr, when set, is returned by every Terminate call.
	TerminateErr error

	// DescribeErr, when set, is returned by every Describe call.
	DescribeErr error

	submitCalls    int
	terminateCalls int
	describeCalls  int
}

var _ Gateway = (*Fake)(nil)

// NewFake creates an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		statuses: make(map[string]string),
		subs:     make(map[string]Submission),
		reasons:  make(map[string]string),
	}
}

func (f *Fake) Submit(_ context.Context, sub Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitCalls++
	if err, ok := f.SubmitErr[sub.Name]; ok && err != nil {
		return "", &GatewayError{Op: "Submit", JobName: sub.Name, Err: err}
	}

	f.nextID++
	id := fmt.Sprintf("ext-%d", f.nextID)
	f.statuses[id] = StatusSubmitted
	f.subs[id] = sub
	return id, nil
}

func (f *Fake) Terminate(_ context.Context, externalID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.terminateCalls++
	if f.TerminateErr != nil {
		return &GatewayError{Op: "Terminate", ExternalID: externalID, Err: f.TerminateErr}
	}
	if _, ok := f.statuses[externalID]; !ok {
		return &GatewayError{Op: "Terminate", ExternalID: externalID, Err: ErrJobNotFound}
	}
	f.statuses[externalID] = StatusFailed
	f.reasons[externalID] = reason
	return nil
}

func (f *Fake) Describe(_ context.Context, externalIDs []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describeCalls++
	if f.DescribeErr != nil {
		return nil, &GatewayError{Op: "Describe", Err: f.DescribeErr}
	}

	out := make(map[string]string, len(externalIDs))
	for _, id := range externalIDs {
		if status, ok := f.statuses[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

// SetStatus updates the remote status of a job, simulating remote progress.
func (f *Fake) SetStatus(externalID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[externalID] = status
}

// Submission returns the payload recorded for an external job id.
func (f *Fake) Submission(externalID string) (Submission, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[externalID]
	return sub, ok
}

// TerminationReason returns the reason recorded by Terminate.
func (f *Fake) TerminationReason(externalID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reasons[externalID]
}

// SubmitCalls returns how many times Submit was invoked.
func (f *Fake) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

// TerminateCalls returns how many times Terminate was invoked.
func (f *Fake) TerminateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminateCalls
}

// DescribeCalls returns how many times Describe was invoked.
func (f *Fake) DescribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeCalls
}
