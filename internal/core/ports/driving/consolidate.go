package driving

import "context"

// Consolidator merges per-chunk shards into the final CSVs.
type Consolidator interface {
	Consolidate(ctx context.Context) (*ConsolidateSummary, error)
}

// ConsolidateSummary reports what was merged.
type ConsolidateSummary struct {
	// Files is the number of metadata rows per kind plural name.
	Files map[string]int

	// Indexes is the number of rows per parent type.
	Indexes map[string]int

	// MasterRows is the number of rows in the master index.
	MasterRows int

	// Links is the number of document link rows.
	Links int
}
