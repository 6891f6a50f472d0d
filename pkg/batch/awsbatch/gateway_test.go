package awsbatch

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqora/exportd/pkg/batch"
)

func TestToContainerOverrides(t *testing.T) {
	t.Run("empty overrides map to nil", func(t *testing.T) {
		assert.Nil(t, toContainerOverrides(batch.ContainerOverrides{}))
	})

	t.Run("environment sorted by key", func(t *testing.T) {
		out := toContainerOverrides(batch.ContainerOverrides{
			Environment: map[string]string{
				"ZED":        "z",
				"DATASET_ID": "abc",
				"MODE":       "portal",
			},
		})
		require.NotNil(t, out)
		require.Len(t, out.Environment, 3)
		assert.Equal(t, "DATASET_ID", aws.ToString(out.Environment[0].Name))
		assert.Equal(t, "abc", aws.ToString(out.Environment[0].Value))
		assert.Equal(t, "MODE", aws.ToString(out.Environment[1].Name))
		assert.Equal(t, "ZED", aws.ToString(out.Environment[2].Name))
	})

	t.Run("command and resources", func(t *testing.T) {
		out := toContainerOverrides(batch.ContainerOverrides{
			Command:   []string{"run", "--fast"},
			MemoryMiB: 4096,
			VCPUs:     2,
		})
		require.NotNil(t, out)
		assert.Equal(t, []string{"run", "--fast"}, out.Command)
		require.Len(t, out.ResourceRequirements, 2)
		assert.Equal(t, types.ResourceTypeMemory, out.ResourceRequirements[0].Type)
		assert.Equal(t, "4096", aws.ToString(out.ResourceRequirements[0].Value))
		assert.Equal(t, types.ResourceTypeVcpu, out.ResourceRequirements[1].Type)
		assert.Equal(t, "2", aws.ToString(out.ResourceRequirements[1].Value))
	})
}

func TestChunkIDs(t *testing.T) {
	assert.Nil(t, chunkIDs(nil, 100))
	assert.Equal(t, [][]string{{"a", "b"}}, chunkIDs([]string{"a", "b"}, 100))
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}},
		chunkIDs([]string{"a", "b", "c", "d", "e"}, 2))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		expect  error
		passRaw bool
	}{
		{
			name:   "throttling maps to ErrThrottled",
			err:    &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "slow down"},
			expect: batch.ErrThrottled,
		},
		{
			name:   "throttling exception maps to ErrThrottled",
			err:    &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			expect: batch.ErrThrottled,
		},
		{
			name:   "server exception maps to ErrUnavailable",
			err:    &smithy.GenericAPIError{Code: "ServerException", Message: "oops"},
			expect: batch.ErrUnavailable,
		},
		{
			name:   "client not found maps to ErrJobNotFound",
			err:    &smithy.GenericAPIError{Code: "ClientException", Message: "job not found"},
			expect: batch.ErrJobNotFound,
		},
		{
			name:    "other client errors pass through",
			err:     &smithy.GenericAPIError{Code: "ClientException", Message: "bad queue"},
			passRaw: true,
		},
		{
			name:    "non-API errors pass through",
			err:     errors.New("dial tcp: timeout"),
			passRaw: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapError("Describe", "", "ext-1", tt.err)

			var gerr *batch.GatewayError
			require.ErrorAs(t, wrapped, &gerr)
			assert.Equal(t, "Describe", gerr.Op)
			assert.Equal(t, "ext-1", gerr.ExternalID)

			if tt.passRaw {
				assert.True(t, errors.Is(wrapped, tt.err))
			} else {
				assert.True(t, errors.Is(wrapped, tt.expect))
			}
		})
	}
}
