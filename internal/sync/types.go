package sync

import (
	"context"
	"time"

	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// Fetcher is the paginated table-API client seen by the sync engine.
// Implementations must return an error on transport/auth failure and
// never map a failure to an empty result.
type Fetcher interface {
	FetchAll(ctx context.Context, resource, query string, fields []string) ([]servicenow.Record, error)
}

// ReferenceStore is the read-side of the relational store used for
// change detection. Absent values are reported via the ok flag, not as
// errors; errors mean the lookup itself failed.
type ReferenceStore interface {
	// Fingerprints returns persisted etl_hash values keyed by id for
	// the requested ids. Ids with no persisted row are simply missing
	// from the map.
	Fingerprints(table string, ids []string) (map[string]string, error)

	// MaxUpdatedAt returns the newest etl_updated_at for a table.
	// ok is false when the table is empty or was never created.
	MaxUpdatedAt(table string) (time.Time, bool, error)

	// IDs returns the set of identifiers present in a table.
	IDs(table string) (map[string]struct{}, error)

	// DistinctRefValues returns the distinct non-null, non-empty values
	// of one reference column in a dependent table.
	DistinctRefValues(table, column string) ([]string, error)
}

// SyncMode identifies the strategy a resolve call ended up using.
type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

// WatermarkSource records how the incremental watermark was derived.
// A failed lookup and a never-synced table both fall back to the
// default lookback window, but they are distinct conditions: one is an
// outage, the other a first run.
type WatermarkSource string

const (
	WatermarkStored      WatermarkSource = "stored"
	WatermarkDefault     WatermarkSource = "default_lookback"
	WatermarkLookupError WatermarkSource = "lookup_error"
)

// ResolveStats describes one resolve call. Returned explicitly with the
// result rather than accumulated on shared state.
type ResolveStats struct {
	Mode            SyncMode
	Watermark       time.Time
	WatermarkSource WatermarkSource
	Fetched         int
	New             int
	Changed         int
	Unchanged       int
	FailedOpen      bool
}

// Result is the outcome of a resolve call: the records that should be
// persisted, plus how they were selected.
type Result struct {
	Records []servicenow.Record
	Stats   ResolveStats
}

// DiffStats describes one diff-filter pass.
type DiffStats struct {
	New        int
	Changed    int
	Unchanged  int
	FailedOpen bool
}
