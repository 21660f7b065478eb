package sync

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// GapResolver backfills entities that dependent tables reference but
// that never made it into their reference table. It is a repair path
// triggered after dependent-entity extraction, separate from the
// full/incremental change-tracking cycle.
type GapResolver struct {
	fetcher   Fetcher
	store     ReferenceStore
	batchSize int
	now       func() time.Time
}

// NewGapResolver creates a missing-reference resolver. batchSize bounds
// the per-request id filter so the generated query stays within URL
// limits.
func NewGapResolver(fetcher Fetcher, store ReferenceStore, batchSize int) *GapResolver {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &GapResolver{
		fetcher:   fetcher,
		store:     store,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// FindGap collects the distinct ids referenced by the dependent table's
// columns and subtracts those already present in the reference table.
func (g *GapResolver) FindGap(refs config.ReferenceColumns, refTable string) (map[string]struct{}, error) {
	referenced := make(map[string]struct{})
	for _, col := range refs.Columns {
		values, err := g.store.DistinctRefValues(refs.DependentTable, col)
		if err != nil {
			return nil, &LookupError{Op: "reference scan", Table: refs.DependentTable, Err: err}
		}
		for _, v := range values {
			if v != "" {
				referenced[v] = struct{}{}
			}
		}
	}

	present, err := g.store.IDs(refTable)
	if err != nil {
		return nil, &LookupError{Op: "id scan", Table: refTable, Err: err}
	}

	for id := range present {
		delete(referenced, id)
	}
	return referenced, nil
}

// ResolveGap fetches the missing entities by id in batches. An empty id
// set returns immediately without touching the network.
func (g *GapResolver) ResolveGap(ctx context.Context, ent config.EntitySettings, ids map[string]struct{}) ([]servicenow.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	log.Printf("🔍 %s: fetching %d referenced-but-missing records", ent.Name, len(ids))

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var all []servicenow.Record
	for start := 0; start < len(sorted); start += g.batchSize {
		end := start + g.batchSize
		if end > len(sorted) {
			end = len(sorted)
		}

		parts := make([]string, 0, end-start)
		for _, id := range sorted[start:end] {
			parts = append(parts, servicenow.IDField+"="+id)
		}

		batch, err := g.fetcher.FetchAll(ctx, ent.Resource, strings.Join(parts, "^OR"), ent.Fields)
		if err != nil {
			return nil, &FetchError{Resource: ent.Resource, Err: err}
		}
		all = append(all, batch...)
	}

	return Prepare(ent, all, g.now()), nil
}
