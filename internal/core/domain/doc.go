// Package domain defines the core business entities for sfdump.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - FileRecord: A remote file or attachment, as listed
//   - DownloadResult: One attempt to materialize a FileRecord locally
//   - IndexRow: A downloaded file associated with a parent record
//   - MissingEntry: A record without a valid local copy
//   - CompletenessReport: The offline inventory of an export
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
