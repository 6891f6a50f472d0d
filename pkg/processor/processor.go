// Package processor maps dataset work onto concrete batch submissions.
//
// Each processor variant is a tagged entry in a registry: the tag selects
// the remote job definition, its step names, and the function that builds
// the container command for a dataset. Dispatch happens on the tag, never
// on dynamic attribute lookup.
package processor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/seqora/exportd/pkg/batch"
	"github.com/seqora/exportd/pkg/dataset"
)

// Kind tags a processor variant.
type Kind string

const (
	// KindPortalDataset builds a user-requested dataset export.
	KindPortalDataset Kind = "PORTAL_DATASET"

	// KindCuratedDataset builds a curator-maintained (CCDL) dataset export.
	KindCuratedDataset Kind = "CCDL_DATASET"
)

// Params carries deployment-specific submission settings.
type Params struct {
	// Queue is the batch queue submissions target.
	Queue string

	// NamePrefix prefixes generated job names.
	NamePrefix string

	// Env is merged into every submission's container environment.
	Env map[string]string

	// MemoryMiB and VCPUs override container resources when positive.
	MemoryMiB int32
	VCPUs     int32
}

// Variant describes one processor: its remote job definition, step names,
// and the handler that builds the container command.
type Variant struct {
	Kind       Kind
	Definition string
	Steps      []string

	// Command builds the container command for a dataset.
	Command func(d *dataset.Dataset) []string
}

// UnknownKindError is returned when dispatching an unregistered kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown processor kind %q", e.Kind)
}

// Registry holds the known processor variants.
type Registry struct {
	mu       sync.RWMutex
	variants map[Kind]Variant
}

// NewRegistry creates a registry pre-populated with the default variants.
func NewRegistry() *Registry {
	r := &Registry{variants: make(map[Kind]Variant)}
	for _, v := range defaultVariants() {
		r.Register(v)
	}
	return r
}

// Register adds or replaces a variant.
func (r *Registry) Register(v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[v.Kind] = v
}

// Lookup returns the variant for a kind.
func (r *Registry) Lookup(kind Kind) (Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.variants[kind]
	if !ok {
		return Variant{}, &UnknownKindError{Kind: kind}
	}
	return v, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Kind, 0, len(r.variants))
	for k := range r.variants {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Submission builds the exact batch submission for a dataset under the
// given variant. The result is persisted on the job so retries reproduce it
// unchanged.
func (r *Registry) Submission(kind Kind, d *dataset.Dataset, p Params) (batch.Submission, error) {
	v, err := r.Lookup(kind)
	if err != nil {
		return batch.Submission{}, err
	}
	if d == nil {
		return batch.Submission{}, fmt.Errorf("dataset is nil")
	}

	env := make(map[string]string, len(p.Env)+1)
	for k, val := range p.Env {
		env[k] = val
	}
	env["DATASET_ID"] = d.ID

	return batch.Submission{
		Name:       jobName(p.NamePrefix, kind, d.ID),
		Queue:      p.Queue,
		Definition: v.Definition,
		Overrides: batch.ContainerOverrides{
			Command:     v.Command(d),
			Environment: env,
			MemoryMiB:   p.MemoryMiB,
			VCPUs:       p.VCPUs,
		},
	}, nil
}

func defaultVariants() []Variant {
	return []Variant{
		{
			Kind:       KindPortalDataset,
			Definition: "exportd-portal-dataset",
			Steps:      []string{"resolve", "download", "package", "upload"},
			Command: func(d *dataset.Dataset) []string {
				return []string{
					"create-portal-dataset",
					"--dataset-id", d.ID,
					"--format", string(d.Format),
				}
			},
		},
		{
			Kind:       KindCuratedDataset,
			Definition: "exportd-ccdl-dataset",
			Steps:      []string{"resolve", "download", "package", "upload", "publish"},
			Command: func(d *dataset.Dataset) []string {
				return []string{
					"create-ccdl-dataset",
					"--dataset-id", d.ID,
					"--format", string(d.Format),
					"--projects", strings.Join(d.ProjectIDs(), ","),
				}
			},
		},
	}
}

func jobName(prefix string, kind Kind, datasetID string) string {
	if prefix == "" {
		prefix = "exportd"
	}
	kindPart := strings.ToLower(strings.ReplaceAll(string(kind), "_", "-"))
	return fmt.Sprintf("%s-%s-%s", prefix, kindPart, datasetID)
}
