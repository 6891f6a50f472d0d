// Package awsbatch implements batch.Gateway on AWS Batch.
package awsbatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"

	"github.com/seqora/exportd/pkg/batch"
)

// describeChunkSize is the AWS Batch DescribeJobs limit per call.
const describeChunkSize = 100

// Config configures the AWS Batch gateway.
type Config struct {
	// Region and Profile follow the SDK default credential chain; optional.
	Region  string
	Profile string
}

// Gateway implements batch.Gateway using the AWS Batch API.
type Gateway struct {
	client *awsbatch.Client
}

var _ batch.Gateway = (*Gateway)(nil)

// New creates a gateway using the SDK default credential chain.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &batch.GatewayError{Op: "New", Err: err}
	}

	return &Gateway{client: awsbatch.NewFromConfig(awsCfg)}, nil
}

// Submit registers the job and returns the AWS Batch job id.
func (g *Gateway) Submit(ctx context.Context, sub batch.Submission) (string, error) {
	input := &awsbatch.SubmitJobInput{
		JobName:            aws.String(sub.Name),
		JobQueue:           aws.String(sub.Queue),
		JobDefinition:      aws.String(sub.Definition),
		ContainerOverrides: toContainerOverrides(sub.Overrides),
	}

	out, err := g.client.SubmitJob(ctx, input)
	if err != nil {
		return "", wrapError("Submit", sub.Name, "", err)
	}

	id := aws.ToString(out.JobId)
	if id == "" {
		return "", &batch.GatewayError{
			Op:      "Submit",
			JobName: sub.Name,
			Err:     fmt.Errorf("service returned no job id"),
		}
	}
	return id, nil
}

// Terminate stops the remote job. AWS Batch cancels queued jobs and kills
// running ones with the same call.
func (g *Gateway) Terminate(ctx context.Context, externalID, reason string) error {
	_, err := g.client.TerminateJob(ctx, &awsbatch.TerminateJobInput{
		JobId:  aws.String(externalID),
		Reason: aws.String(reason),
	})
	if err != nil {
		return wrapError("Terminate", "", externalID, err)
	}
	return nil
}

// Describe returns current status per external job id, chunking requests to
// the DescribeJobs API limit.
func (g *Gateway) Describe(ctx context.Context, externalIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(externalIDs))

	for _, chunk := range chunkIDs(externalIDs, describeChunkSize) {
		resp, err := g.client.DescribeJobs(ctx, &awsbatch.DescribeJobsInput{Jobs: chunk})
		if err != nil {
			return nil, wrapError("Describe", "", "", err)
		}
		for _, detail := range resp.Jobs {
			out[aws.ToString(detail.JobId)] = string(detail.Status)
		}
	}

	return out, nil
}

// toContainerOverrides maps the persisted overrides to the AWS request shape.
// Environment keys are emitted in sorted order for reproducible requests.
func toContainerOverrides(o batch.ContainerOverrides) *types.ContainerOverrides {
	out := &types.ContainerOverrides{}
	empty := true

	if len(o.Command) > 0 {
		out.Command = o.Command
		empty = false
	}

	if len(o.Environment) > 0 {
		keys := make([]string, 0, len(o.Environment))
		for k := range o.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Environment = append(out.Environment, types.KeyValuePair{
				Name:  aws.String(k),
				Value: aws.String(o.Environment[k]),
			})
		}
		empty = false
	}

	if o.MemoryMiB > 0 {
		out.ResourceRequirements = append(out.ResourceRequirements, types.ResourceRequirement{
			Type:  types.ResourceTypeMemory,
			Value: aws.String(strconv.Itoa(int(o.MemoryMiB))),
		})
		empty = false
	}
	if o.VCPUs > 0 {
		out.ResourceRequirements = append(out.ResourceRequirements, types.ResourceRequirement{
			Type:  types.ResourceTypeVcpu,
			Value: aws.String(strconv.Itoa(int(o.VCPUs))),
		})
		empty = false
	}

	if empty {
		return nil
	}
	return out
}

func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// wrapError converts AWS Batch errors into gateway sentinel errors.
func wrapError(op, jobName, externalID string, err error) error {
	wrapped := &batch.GatewayError{Op: op, JobName: jobName, ExternalID: externalID, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "TooManyRequestsException", code == "ThrottlingException":
			wrapped.Err = batch.ErrThrottled
		case code == "ServerException", code == "ServiceUnavailable":
			wrapped.Err = batch.ErrUnavailable
		case code == "ClientException" && strings.Contains(apiErr.ErrorMessage(), "not found"):
			wrapped.Err = batch.ErrJobNotFound
		}
	}

	return wrapped
}
