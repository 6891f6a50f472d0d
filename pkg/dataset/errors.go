package dataset

import "fmt"

// ValidationError rejects a malformed dataset request before any job is
// created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FormatChangeError rejects an in-place format change on a dataset that
// already references data.
type FormatChangeError struct {
	DatasetID string
	From      Format
	To        Format
}

func (e *FormatChangeError) Error() string {
	return fmt.Sprintf("dataset %s: cannot change format %s -> %s in place; create a new dataset", e.DatasetID, e.From, e.To)
}

// MissingLibrariesError is a resolution precondition failure: a requested
// project/modality combination resolved to zero libraries. Downstream job
// creation must not proceed.
type MissingLibrariesError struct {
	ProjectID string
	Modality  Modality
}

func (e *MissingLibrariesError) Error() string {
	return fmt.Sprintf("project %s has no libraries for modality %s", e.ProjectID, e.Modality)
}

// LockedProjectError is a resolution precondition failure: a referenced
// project is mid-update and must not be read.
type LockedProjectError struct {
	ProjectID string
}

func (e *LockedProjectError) Error() string {
	return fmt.Sprintf("project %s is locked for update", e.ProjectID)
}
