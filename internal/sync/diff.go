package sync

import (
	"log"

	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// DiffFilter drops records whose persisted fingerprint matches the
// freshly computed one, keeping only new and genuinely changed rows.
type DiffFilter struct {
	store ReferenceStore
}

// NewDiffFilter creates a diff filter over the given reference store.
func NewDiffFilter(store ReferenceStore) *DiffFilter {
	return &DiffFilter{store: store}
}

// FilterChanged classifies tagged records against the persisted
// fingerprints and returns new + changed ones, preserving input order.
//
// If the fingerprint lookup itself fails the filter fails open and
// returns the entire input: a spurious full-write is recoverable, while
// dropping records on a transient outage loses them for the whole sync
// cycle.
func (f *DiffFilter) FilterChanged(table string, recs []servicenow.Record) ([]servicenow.Record, DiffStats) {
	if len(recs) == 0 {
		return recs, DiffStats{}
	}

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID())
	}

	persisted, err := f.store.Fingerprints(table, ids)
	if err != nil {
		log.Printf("⚠️ Fingerprint lookup on %s failed, keeping all %d records: %v", table, len(recs), err)
		return recs, DiffStats{FailedOpen: true}
	}

	var stats DiffStats
	kept := make([]servicenow.Record, 0, len(recs))
	for _, rec := range recs {
		stored, exists := persisted[rec.ID()]
		switch {
		case !exists:
			stats.New++
			kept = append(kept, rec)
		case stored != rec[HashField]:
			stats.Changed++
			kept = append(kept, rec)
		default:
			stats.Unchanged++
		}
	}
	return kept, stats
}
