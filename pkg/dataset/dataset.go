// Package dataset models a user- or curator-defined export request and its
// resolution into the concrete set of library files required.
package dataset

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Format is the requested export format.
type Format string

const (
	FormatSingleCellExperiment Format = "SINGLE_CELL_EXPERIMENT"
	FormatAnnData              Format = "ANN_DATA"
	FormatMetadata             Format = "METADATA"
)

// Modality selects which library type a project contributes.
type Modality string

const (
	ModalitySingleCell Modality = "SINGLE_CELL"
	ModalitySpatial    Modality = "SPATIAL"
)

// MergedSamples is the sentinel sample list entry requesting the project's
// merged object instead of individual samples.
const MergedSamples = "MERGED"

// Identifier formats for projects, samples, and libraries.
var (
	projectIDPattern = regexp.MustCompile(`^SCPCP\d{6}$`)
	sampleIDPattern  = regexp.MustCompile(`^SCPCS\d{6}$`)
	libraryIDPattern = regexp.MustCompile(`^SCPCL\d{6}$`)
)

// ProjectRequest is one project's contribution to a dataset: per modality
// either an explicit sample-id list or the merged sentinel, plus whether the
// project's bulk data rides along.
type ProjectRequest struct {
	Samples      map[Modality][]string `json:"samples" yaml:"samples"`
	IncludesBulk bool                  `json:"includes_bulk" yaml:"includes_bulk"`
}

// Dataset is the declarative export request plus the fingerprints computed
// over its resolution.
type Dataset struct {
	ID     string `json:"id"`
	Format Format `json:"format"`

	// Projects maps project id to its requested contribution.
	Projects map[string]ProjectRequest `json:"projects"`

	DataHash     string `json:"data_hash,omitempty"`
	MetadataHash string `json:"metadata_hash,omitempty"`
	ReadmeHash   string `json:"readme_hash,omitempty"`
	CombinedHash string `json:"combined_hash,omitempty"`

	// RegeneratedFrom references the dataset this one superseded when its
	// resolved contents changed.
	RegeneratedFrom string `json:"regenerated_from,omitempty"`

	// NeedsAttention flags a dataset whose retry chain hit the attempt
	// ceiling; it stays set until an operator intervenes.
	NeedsAttention bool `json:"needs_attention,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an empty dataset with a fresh id.
func New(format Format) *Dataset {
	now := time.Now().UTC()
	return &Dataset{
		ID:        uuid.New().String(),
		Format:    format,
		Projects:  make(map[string]ProjectRequest),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasData reports whether the dataset's request references any project data.
func (d *Dataset) HasData() bool {
	return len(d.Projects) > 0
}

// Validate rejects malformed requests before any job is created.
func (d *Dataset) Validate() error {
	switch d.Format {
	case FormatSingleCellExperiment, FormatAnnData, FormatMetadata:
	default:
		return &ValidationError{Field: "format", Message: fmt.Sprintf("unsupported format %q", d.Format)}
	}

	if len(d.Projects) == 0 {
		return &ValidationError{Field: "projects", Message: "at least one project is required"}
	}

	for projectID, req := range d.Projects {
		if !projectIDPattern.MatchString(projectID) {
			return &ValidationError{Field: "projects", Message: fmt.Sprintf("malformed project id %q", projectID)}
		}
		if len(req.Samples) == 0 && !req.IncludesBulk {
			return &ValidationError{Field: "projects", Message: fmt.Sprintf("project %s requests no samples and no bulk data", projectID)}
		}
		for modality, samples := range req.Samples {
			switch modality {
			case ModalitySingleCell, ModalitySpatial:
			default:
				return &ValidationError{Field: "projects", Message: fmt.Sprintf("project %s: unsupported modality %q", projectID, modality)}
			}
			if len(samples) == 0 {
				return &ValidationError{Field: "projects", Message: fmt.Sprintf("project %s: empty sample list for %s", projectID, modality)}
			}
			for _, sample := range samples {
				if sample == MergedSamples {
					if len(samples) != 1 {
						return &ValidationError{Field: "projects", Message: fmt.Sprintf("project %s: merged sentinel must be the only entry", projectID)}
					}
					continue
				}
				if !sampleIDPattern.MatchString(sample) {
					return &ValidationError{Field: "projects", Message: fmt.Sprintf("project %s: malformed sample id %q", projectID, sample)}
				}
			}
		}
	}

	return nil
}

// ChangeFormat switches the export format.
//
// Format and data together define the fingerprint domain, so a dataset that
// already references data must never change format in place; a format change
// requires a new dataset.
func (d *Dataset) ChangeFormat(f Format) error {
	if d.HasData() && f != d.Format {
		return &FormatChangeError{DatasetID: d.ID, From: d.Format, To: f}
	}
	d.Format = f
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// ProjectIDs returns the requested project ids in sorted order.
func (d *Dataset) ProjectIDs() []string {
	out := make([]string, 0, len(d.Projects))
	for id := range d.Projects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsMerged reports whether the request asks for the project's merged object
// for the given modality.
func (r ProjectRequest) IsMerged(m Modality) bool {
	samples := r.Samples[m]
	return len(samples) == 1 && strings.TrimSpace(samples[0]) == MergedSamples
}
