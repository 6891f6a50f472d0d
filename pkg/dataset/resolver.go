package dataset

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/seqora/exportd/pkg/fingerprint"
	"github.com/seqora/exportd/pkg/objectstore"
)

// File identifies one resolved file by key and size.
type File struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ResolvedManifest enumerates, per project, the concrete libraries and files
// required for the dataset's format/modality combination. Resolution is
// independent of whether target archives already exist.
type ResolvedManifest struct {
	DatasetID string
	Format    Format
	Projects  map[string]*ProjectManifest
}

// ProjectManifest is one project's resolved contribution.
type ProjectManifest struct {
	// Libraries maps library id to its included data files. Merged requests
	// appear under the MergedSamples pseudo-id.
	Libraries map[string][]File

	// Metadata is the metadata-only file subset.
	Metadata []File

	// Bulk lists the project's bulk files when requested.
	Bulk []File
}

// LockChecker reports whether a project is currently excluded from reads.
type LockChecker interface {
	IsProjectLocked(ctx context.Context, projectID string) (bool, error)
}

// Resolver expands a dataset request against object storage listings.
type Resolver struct {
	storage objectstore.Store
	locks   LockChecker
}

// NewResolver creates a resolver over the given storage and lock source.
func NewResolver(storage objectstore.Store, locks LockChecker) *Resolver {
	return &Resolver{storage: storage, locks: locks}
}

var libraryKeyPattern = regexp.MustCompile(`SCPCL\d{6}`)

// Resolve expands the dataset into its concrete file manifest.
//
// It fails with LockedProjectError when any referenced project is mid-update
// and with MissingLibrariesError when a requested project/modality
// combination resolves to zero libraries. Both are precondition failures:
// job creation must not proceed on either.
func (r *Resolver) Resolve(ctx context.Context, d *Dataset) (*ResolvedManifest, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := &ResolvedManifest{
		DatasetID: d.ID,
		Format:    d.Format,
		Projects:  make(map[string]*ProjectManifest, len(d.Projects)),
	}

	for _, projectID := range d.ProjectIDs() {
		req := d.Projects[projectID]

		locked, err := r.locks.IsProjectLocked(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("check project lock %s: %w", projectID, err)
		}
		if locked {
			return nil, &LockedProjectError{ProjectID: projectID}
		}

		objects, err := r.storage.List(ctx, projectID+"/")
		if err != nil {
			return nil, fmt.Errorf("list project %s: %w", projectID, err)
		}

		pm, err := resolveProject(projectID, req, d.Format, objects)
		if err != nil {
			return nil, err
		}
		out.Projects[projectID] = pm
	}

	return out, nil
}

func resolveProject(projectID string, req ProjectRequest, format Format, objects []objectstore.Object) (*ProjectManifest, error) {
	pm := &ProjectManifest{Libraries: make(map[string][]File)}

	for _, obj := range objects {
		if isMetadataKey(obj.Key) {
			pm.Metadata = append(pm.Metadata, File{Key: obj.Key, Size: obj.Size})
		}
	}
	sortFiles(pm.Metadata)

	for _, modality := range sortedModalities(req.Samples) {
		if req.IsMerged(modality) {
			files := matchKeys(objects, mergedPatterns(format, modality))
			if len(files) == 0 {
				return nil, &MissingLibrariesError{ProjectID: projectID, Modality: modality}
			}
			pm.Libraries[MergedSamples] = append(pm.Libraries[MergedSamples], files...)
			continue
		}

		wanted := make(map[string]bool, len(req.Samples[modality]))
		for _, sample := range req.Samples[modality] {
			wanted[sample] = true
		}

		found := false
		for _, obj := range objects {
			if !matchesAny(obj.Key, libraryPatterns(format, modality)) {
				continue
			}
			sampleID, libraryID, ok := parseLibraryKey(obj.Key)
			if !ok || !wanted[sampleID] {
				continue
			}
			pm.Libraries[libraryID] = append(pm.Libraries[libraryID], File{Key: obj.Key, Size: obj.Size})
			found = true
		}
		if !found {
			return nil, &MissingLibrariesError{ProjectID: projectID, Modality: modality}
		}
	}

	if req.IncludesBulk {
		pm.Bulk = matchKeys(objects, []string{projectID + "/bulk/**"})
	}

	for id := range pm.Libraries {
		sortFiles(pm.Libraries[id])
	}
	sortFiles(pm.Bulk)

	return pm, nil
}

// libraryPatterns returns the key globs selecting per-sample library files
// for a format/modality combination.
func libraryPatterns(format Format, modality Modality) []string {
	switch modality {
	case ModalitySpatial:
		return []string{"*/*/*_spatial/**"}
	default:
		if format == FormatAnnData {
			return []string{"*/*/*_processed_*.h5ad"}
		}
		return []string{"*/*/*_processed.rds"}
	}
}

// mergedPatterns returns the key globs selecting a project's merged object.
func mergedPatterns(format Format, modality Modality) []string {
	if modality == ModalitySpatial {
		return []string{"*/merged/*_spatial_merged*"}
	}
	if format == FormatAnnData {
		return []string{"*/merged/*_merged_*.h5ad"}
	}
	return []string{"*/merged/*_merged.rds"}
}

func isMetadataKey(key string) bool {
	return strings.HasSuffix(key, "_metadata.tsv") || strings.HasSuffix(key, "_metadata.json")
}

// parseLibraryKey extracts sample and library ids from a key shaped like
// <project>/<sample>/<library>_<suffix>.
func parseLibraryKey(key string) (sampleID, libraryID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	sampleID = parts[1]
	if !sampleIDPattern.MatchString(sampleID) {
		return "", "", false
	}
	libraryID = libraryKeyPattern.FindString(path.Base(key))
	if libraryID == "" {
		// Spatial files nest one level deeper; fall back to the full key.
		libraryID = libraryKeyPattern.FindString(key)
	}
	if !libraryIDPattern.MatchString(libraryID) {
		return "", "", false
	}
	return sampleID, libraryID, true
}

func matchesAny(key string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, key); err == nil && ok {
			return true
		}
	}
	return false
}

func matchKeys(objects []objectstore.Object, patterns []string) []File {
	var out []File
	for _, obj := range objects {
		if matchesAny(obj.Key, patterns) {
			out = append(out, File{Key: obj.Key, Size: obj.Size})
		}
	}
	sortFiles(out)
	return out
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
}

// DataFiles returns every file included in the data payload, sorted by key.
// The METADATA format has no separate data payload.
func (m *ResolvedManifest) DataFiles() []File {
	if m.Format == FormatMetadata {
		return nil
	}

	var out []File
	for _, projectID := range sortedProjectIDs(m.Projects) {
		pm := m.Projects[projectID]
		for _, id := range sortedLibraryIDs(pm.Libraries) {
			out = append(out, pm.Libraries[id]...)
		}
		out = append(out, pm.Bulk...)
	}
	sortFiles(out)
	return out
}

// MetadataFiles returns the metadata-only subset, sorted by key.
func (m *ResolvedManifest) MetadataFiles() []File {
	var out []File
	for _, projectID := range sortedProjectIDs(m.Projects) {
		out = append(out, m.Projects[projectID].Metadata...)
	}
	sortFiles(out)
	return out
}

// FingerprintInput converts the manifest into fingerprint engine input.
func (m *ResolvedManifest) FingerprintInput(readme string) fingerprint.Input {
	return fingerprint.Input{
		Format:   string(m.Format),
		Data:     toFingerprintFiles(m.DataFiles()),
		Metadata: toFingerprintFiles(m.MetadataFiles()),
		Readme:   readme,
	}
}

// Readme renders the generated README content for the resolved file set.
//
// Archive packaging renders the full document elsewhere; this digest-stable
// form captures everything that identifies the resolution.
func (m *ResolvedManifest) Readme() string {
	// The dataset id is deliberately excluded: two datasets with identical
	// resolved contents must hash identically.
	var b strings.Builder
	fmt.Fprintf(&b, "format: %s\n", m.Format)
	for _, projectID := range sortedProjectIDs(m.Projects) {
		pm := m.Projects[projectID]
		fmt.Fprintf(&b, "project %s: %d libraries, %d metadata files, %d bulk files\n",
			projectID, len(pm.Libraries), len(pm.Metadata), len(pm.Bulk))
	}
	return b.String()
}

func toFingerprintFiles(files []File) []fingerprint.File {
	out := make([]fingerprint.File, len(files))
	for i, f := range files {
		out[i] = fingerprint.File{Key: f.Key, Size: f.Size}
	}
	return out
}

func sortedModalities(samples map[Modality][]string) []Modality {
	out := make([]Modality, 0, len(samples))
	for m := range samples {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedProjectIDs(projects map[string]*ProjectManifest) []string {
	out := make([]string, 0, len(projects))
	for id := range projects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedLibraryIDs(libraries map[string][]File) []string {
	out := make([]string, 0, len(libraries))
	for id := range libraries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
