package domain

import (
	"fmt"
	"time"
)

// Defaults for ExportConfig.
const (
	DefaultMaxWorkers   = 8
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
	DefaultFetchTimeout = 5 * time.Minute
)

// ExportConfig is the explicit configuration of one pipeline run.
// It is built once at startup and passed to every component; nothing in
// the pipeline reads configuration from the environment.
type ExportConfig struct {
	// OutDir is the export root.
	OutDir string `validate:"required"`

	// IncludeLegacy enables legacy Attachment files.
	IncludeLegacy bool

	// IncludeModern enables ContentVersion documents.
	IncludeModern bool

	// LegacyWhere is an extra predicate for the Attachment listing.
	LegacyWhere string

	// ModernWhere is an extra predicate for the ContentVersion listing.
	ModernWhere string

	// IndexBy restricts index building to these parent types.
	// Empty means every parent type encountered.
	IndexBy []string `validate:"dive,apiname"`

	// IndexOnly rebuilds indexes from files already on disk without downloading.
	IndexOnly bool

	// EstimateOnly lists records and sums their sizes without downloading.
	EstimateOnly bool

	// MaxWorkers bounds the download worker pool.
	MaxWorkers int `validate:"gte=1,lte=256"`

	// ChunkTotal is the number of chunks the record set is split into.
	ChunkTotal int `validate:"gte=1"`

	// ChunkIndex is the 0-based chunk this process handles.
	ChunkIndex int `validate:"gte=0,ltfield=ChunkTotal"`

	// Order is the lister's sort direction.
	Order Order `validate:"oneof=asc desc"`

	// MaxAttempts bounds fetches per record within one materialization.
	MaxAttempts int `validate:"gte=1,lte=10"`

	// RetryBackoff is the initial delay between fetch attempts; it doubles
	// on each retry.
	RetryBackoff time.Duration `validate:"gte=0"`

	// FetchTimeout bounds a single fetch.
	FetchTimeout time.Duration `validate:"gt=0"`

	// VerifyChecksums strengthens the "already present" check with the
	// checksum recorded in the ledger.
	VerifyChecksums bool

	// LabelFields maps parent types to their label field.
	LabelFields LabelFields `validate:"dive,keys,apiname,endkeys,apiname"`
}

// DefaultExportConfig returns a config with both kinds enabled and a
// single chunk.
func DefaultExportConfig(outDir string) ExportConfig {
	return ExportConfig{
		OutDir:        outDir,
		IncludeLegacy: true,
		IncludeModern: true,
		MaxWorkers:    DefaultMaxWorkers,
		ChunkTotal:    1,
		ChunkIndex:    0,
		Order:         OrderAsc,
		MaxAttempts:   DefaultMaxAttempts,
		RetryBackoff:  DefaultRetryBackoff,
		FetchTimeout:  DefaultFetchTimeout,
		LabelFields:   DefaultLabelFields(),
	}
}

// Kinds returns the enabled source kinds in processing order.
func (c ExportConfig) Kinds() []SourceKind {
	var kinds []SourceKind
	for _, k := range AllKinds() {
		if (k == KindModernDocument && c.IncludeModern) || (k == KindLegacyAttachment && c.IncludeLegacy) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Where returns the listing predicate for a kind.
func (c ExportConfig) Where(kind SourceKind) string {
	if kind == KindLegacyAttachment {
		return c.LegacyWhere
	}
	return c.ModernWhere
}

// Chunked returns true when the record set is split across processes.
func (c ExportConfig) Chunked() bool {
	return c.ChunkTotal > 1
}

// ChunkLabel names this process's chunk for shard files, e.g. "2of7".
// The number is 1-based for readability.
func (c ExportConfig) ChunkLabel() string {
	return fmt.Sprintf("%dof%d", c.ChunkIndex+1, c.ChunkTotal)
}
