// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the CLI and library work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// DatasetRequestSchema is the embedded dataset-request JSON schema.
//
// This allows request validation to work in installed binaries and library
// consumers without requiring the schema files to be present on disk.
//
//go:embed dataset-request.schema.json
var DatasetRequestSchema []byte
