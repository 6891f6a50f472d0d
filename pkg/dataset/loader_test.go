package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAMLRequest = `format: SINGLE_CELL_EXPERIMENT
projects:
  SCPCP000001:
    includes_bulk: true
    samples:
      SINGLE_CELL:
        - SCPCS000101
        - SCPCS000102
`

const validJSONRequest = `{
  "format": "ANN_DATA",
  "projects": {
    "SCPCP000002": {
      "samples": {
        "SINGLE_CELL": ["MERGED"]
      }
    }
  }
}`

func writeRequest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	d, err := Load(writeRequest(t, "request.yaml", validYAMLRequest))
	require.NoError(t, err)

	assert.Equal(t, FormatSingleCellExperiment, d.Format)
	assert.NotEmpty(t, d.ID)

	req, ok := d.Projects["SCPCP000001"]
	require.True(t, ok)
	assert.True(t, req.IncludesBulk)
	assert.Equal(t, []string{"SCPCS000101", "SCPCS000102"}, req.Samples[ModalitySingleCell])
}

func TestLoad_JSON(t *testing.T) {
	d, err := Load(writeRequest(t, "request.json", validJSONRequest))
	require.NoError(t, err)

	assert.Equal(t, FormatAnnData, d.Format)
	assert.True(t, d.Projects["SCPCP000002"].IsMerged(ModalitySingleCell))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadFromBytes_Empty(t *testing.T) {
	_, err := LoadFromBytes(nil, "request.yaml")
	require.Error(t, err)
}

func TestLoad_SchemaRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown format",
			content: `format: PARQUET
projects:
  SCPCP000001:
    samples:
      SINGLE_CELL: [SCPCS000101]
`,
		},
		{
			name: "malformed project id",
			content: `format: METADATA
projects:
  project-1:
    samples:
      SINGLE_CELL: [SCPCS000101]
`,
		},
		{
			name: "malformed sample id",
			content: `format: METADATA
projects:
  SCPCP000001:
    samples:
      SINGLE_CELL: [sample-1]
`,
		},
		{
			name: "unknown top-level field",
			content: `format: METADATA
destination: s3://somewhere
projects:
  SCPCP000001:
    samples:
      SINGLE_CELL: [SCPCS000101]
`,
		},
		{
			name:    "missing projects",
			content: `format: METADATA` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeRequest(t, "request.yaml", tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoad_RegeneratedFrom(t *testing.T) {
	content := `format: METADATA
regenerated_from: "  prior-dataset-id  "
projects:
  SCPCP000001:
    samples:
      SINGLE_CELL: [SCPCS000101]
`
	d, err := Load(writeRequest(t, "request.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, "prior-dataset-id", d.RegeneratedFrom)
}
