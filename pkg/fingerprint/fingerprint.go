// Package fingerprint computes stable content hashes over a dataset's
// resolved file set.
//
// The combined hash is the single idempotency key: two datasets with
// identical resolved inputs and identical format always produce the same
// combined hash, which lets callers skip recomputation entirely.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// File identifies one included file by key and size.
//
// Sizes participate in the hash so a re-uploaded file with the same key but
// different content is detected without reading object bodies.
type File struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Input is the resolved material a fingerprint is computed over.
type Input struct {
	// Format is the requested export format. Format and data together define
	// the fingerprint domain, so it is part of every payload.
	Format string

	// Data lists every file included in the data payload.
	Data []File

	// Metadata lists the metadata-only subset.
	Metadata []File

	// Readme is the generated README content derived from the resolved file
	// set and dataset parameters.
	Readme string
}

// Fingerprint holds the four hashes computed for a dataset.
type Fingerprint struct {
	Data     string `json:"data_hash"`
	Metadata string `json:"metadata_hash"`
	Readme   string `json:"readme_hash"`
	Combined string `json:"combined_hash"`
}

type filesPayload struct {
	Format string `json:"format"`
	Files  []File `json:"files"`
}

type combinedPayload struct {
	Data     string `json:"data_hash"`
	Metadata string `json:"metadata_hash"`
	Readme   string `json:"readme_hash"`
}

// Compute produces all four hashes for the given input.
//
// File lists are canonicalized (trimmed keys, deduplicated, sorted) before
// hashing, so caller-side ordering never affects the result.
func Compute(in Input) (*Fingerprint, error) {
	format := strings.TrimSpace(in.Format)
	if format == "" {
		return nil, errors.New("fingerprint format is required")
	}

	dataHash, err := hashFiles(format, in.Data)
	if err != nil {
		return nil, fmt.Errorf("data hash: %w", err)
	}
	metadataHash, err := hashFiles(format, in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata hash: %w", err)
	}
	readmeHash := hashBytes([]byte(in.Readme))

	combined, err := hashJSON(combinedPayload{
		Data:     dataHash,
		Metadata: metadataHash,
		Readme:   readmeHash,
	})
	if err != nil {
		return nil, fmt.Errorf("combined hash: %w", err)
	}

	return &Fingerprint{
		Data:     dataHash,
		Metadata: metadataHash,
		Readme:   readmeHash,
		Combined: combined,
	}, nil
}

func hashFiles(format string, files []File) (string, error) {
	canonical, err := canonicalizeFiles(files)
	if err != nil {
		return "", err
	}
	return hashJSON(filesPayload{Format: format, Files: canonical})
}

// canonicalizeFiles trims, deduplicates, and sorts file entries by key.
// Unordered traversal of the source file set must never change the hash.
func canonicalizeFiles(files []File) ([]File, error) {
	if len(files) == 0 {
		return []File{}, nil
	}

	unique := make(map[string]File, len(files))
	for _, f := range files {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			continue
		}
		if prev, ok := unique[key]; ok {
			if prev.Size != f.Size {
				return nil, fmt.Errorf("conflicting sizes for file %q (%d vs %d)", key, prev.Size, f.Size)
			}
			continue
		}
		unique[key] = File{Key: key, Size: f.Size}
	}

	out := make([]File, 0, len(unique))
	for _, f := range unique {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func hashJSON(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return hashBytes(b), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
