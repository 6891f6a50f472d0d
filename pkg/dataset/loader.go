package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/seqora/exportd/internal/assets/schemas"
)

// Validation errors
var (
	// ErrSchemaNotFound indicates the embedded schema could not be loaded.
	ErrSchemaNotFound = errors.New("dataset request schema not found")

	// ErrValidationFailed indicates the request failed schema validation.
	ErrValidationFailed = errors.New("dataset request validation failed")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// Request is the on-disk shape of a dataset export request.
type Request struct {
	Format          string                    `json:"format" yaml:"format"`
	Projects        map[string]ProjectRequest `json:"projects" yaml:"projects"`
	RegeneratedFrom string                    `json:"regenerated_from,omitempty" yaml:"regenerated_from,omitempty"`
}

// Load reads and validates a dataset request from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. Unrecognized extensions try YAML first, then JSON. The raw data is
// validated against the embedded JSON schema before being parsed, so unknown
// fields are rejected rather than silently dropped.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset request not found: %s", path)
		}
		return nil, fmt.Errorf("read dataset request: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a dataset request from raw bytes.
// The path parameter is used for format detection and error messages.
func LoadFromBytes(data []byte, path string) (*Dataset, error) {
	if len(data) == 0 {
		return nil, errors.New("dataset request is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	var req Request
	if err := json.Unmarshal(jsonData, &req); err != nil {
		return nil, fmt.Errorf("parse dataset request: %w", err)
	}

	d := New(Format(req.Format))
	d.Projects = req.Projects
	d.RegeneratedFrom = strings.TrimSpace(req.RegeneratedFrom)
	if d.Projects == nil {
		d.Projects = make(map[string]ProjectRequest)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ValidateRaw checks raw JSON data against the embedded request schema.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var msgs []string
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Pointer, d.Message))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.DatasetRequestSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.DatasetRequestSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile dataset request schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}

// toJSON converts the raw request bytes to JSON for schema validation.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return data, nil
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		if out, err := yamlToJSON(data); err == nil {
			return out, nil
		}
		return data, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml request: %w", err)
	}
	out, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, fmt.Errorf("convert request to json: %w", err)
	}
	return out, nil
}

// normalizeYAML rewrites map[any]any (yaml.v3 for non-string keys) into
// map[string]any so the result marshals as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
