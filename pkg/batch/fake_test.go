package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubmission(name string) Submission {
	return Submission{
		Name:       name,
		Queue:      "exportd-queue",
		Definition: "exportd-portal-dataset",
		Overrides: ContainerOverrides{
			Environment: map[string]string{"DATASET_ID": "abc"},
		},
	}
}

func TestFakeSubmit(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	id, err := f.Submit(ctx, testSubmission("job-a"))
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)

	id2, err := f.Submit(ctx, testSubmission("job-b"))
	require.NoError(t, err)
	assert.Equal(t, "ext-2", id2)

	sub, ok := f.Submission(id)
	require.True(t, ok)
	assert.Equal(t, "job-a", sub.Name)
	assert.Equal(t, 2, f.SubmitCalls())

	statuses, err := f.Describe(ctx, []string{id, id2})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{id: StatusSubmitted, id2: StatusSubmitted}, statuses)
}

func TestFakeSubmit_ScriptedFailure(t *testing.T) {
	f := NewFake()
	f.SubmitErr = map[string]error{"job-bad": errors.New("quota exceeded")}

	_, err := f.Submit(context.Background(), testSubmission("job-bad"))
	require.Error(t, err)

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "Submit", gerr.Op)
	assert.Equal(t, "job-bad", gerr.JobName)

	// Failed submissions consume no external id.
	id, err := f.Submit(context.Background(), testSubmission("job-ok"))
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
}

func TestFakeTerminate(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	id, err := f.Submit(ctx, testSubmission("job-a"))
	require.NoError(t, err)

	require.NoError(t, f.Terminate(ctx, id, "operator request"))
	assert.Equal(t, "operator request", f.TerminationReason(id))

	statuses, err := f.Describe(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, statuses[id])

	err = f.Terminate(ctx, "ext-99", "nope")
	assert.True(t, IsJobNotFound(err))
}

func TestFakeDescribe_OmitsUnknownIDs(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	id, err := f.Submit(ctx, testSubmission("job-a"))
	require.NoError(t, err)
	f.SetStatus(id, StatusRunning)

	statuses, err := f.Describe(ctx, []string{id, "ext-gone"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{id: StatusRunning}, statuses)
	assert.NotContains(t, statuses, "ext-gone")
	assert.Equal(t, 1, f.DescribeCalls())
}

func TestTerminalStatus(t *testing.T) {
	assert.True(t, TerminalStatus(StatusSucceeded))
	assert.True(t, TerminalStatus(StatusFailed))
	assert.False(t, TerminalStatus(StatusSubmitted))
	assert.False(t, TerminalStatus(StatusRunning))
	assert.False(t, TerminalStatus(""))
}

func TestGatewayErrorMessages(t *testing.T) {
	assert.Equal(t, "batch Submit: job-a: boom",
		(&GatewayError{Op: "Submit", JobName: "job-a", Err: errors.New("boom")}).Error())
	assert.Equal(t, "batch Terminate: ext-1: boom",
		(&GatewayError{Op: "Terminate", ExternalID: "ext-1", Err: errors.New("boom")}).Error())
	assert.Equal(t, "batch Describe: boom",
		(&GatewayError{Op: "Describe", Err: errors.New("boom")}).Error())
}

func TestErrorPredicates(t *testing.T) {
	wrapped := &GatewayError{Op: "Describe", Err: ErrThrottled}
	assert.True(t, IsThrottled(wrapped))
	assert.False(t, IsJobNotFound(wrapped))
	assert.True(t, IsUnavailable(&GatewayError{Op: "Submit", Err: ErrUnavailable}))
	assert.False(t, IsThrottled(errors.New("other")))
}
