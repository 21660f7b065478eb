package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

func userRefs() config.ReferenceColumns {
	return config.ReferenceColumns{
		DependentTable: "incident",
		Columns:        []string{"resolved_by", "opened_by"},
	}
}

func TestFindGap(t *testing.T) {
	store := &stubStore{
		refValues: map[string][]string{
			"resolved_by": {"u1", "u2"},
			"opened_by":   {"u2", "u3", ""},
		},
		ids: map[string]struct{}{"u1": {}},
	}

	gap, err := NewGapResolver(&stubFetcher{}, store, 50).FindGap(userRefs(), "sys_user")
	if err != nil {
		t.Fatalf("FindGap failed: %v", err)
	}

	if len(gap) != 2 {
		t.Fatalf("Expected gap {u2, u3}, got %v", gap)
	}
	for _, id := range []string{"u2", "u3"} {
		if _, ok := gap[id]; !ok {
			t.Errorf("Expected %s in the gap", id)
		}
	}
}

func TestFindGapLookupError(t *testing.T) {
	store := &stubStore{refErr: errors.New("connection refused")}
	_, err := NewGapResolver(&stubFetcher{}, store, 50).FindGap(userRefs(), "sys_user")
	if err == nil {
		t.Fatal("Expected an error when the reference scan fails")
	}
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Errorf("Expected a LookupError, got %T", err)
	}
}

func TestResolveGapEmptySkipsNetwork(t *testing.T) {
	fetcher := &stubFetcher{}
	recs, err := NewGapResolver(fetcher, &stubStore{}, 50).ResolveGap(context.Background(), testEntity(), nil)
	if err != nil {
		t.Fatalf("ResolveGap failed: %v", err)
	}
	if recs != nil {
		t.Errorf("Expected no records, got %d", len(recs))
	}
	if len(fetcher.calls) != 0 {
		t.Error("An empty gap must not touch the network")
	}
}

func TestResolveGapBatches(t *testing.T) {
	ids := make(map[string]struct{})
	for i := 0; i < 120; i++ {
		ids[fmt.Sprintf("u%03d", i)] = struct{}{}
	}

	fetcher := &stubFetcher{respond: func(_, query string) ([]servicenow.Record, error) {
		var recs []servicenow.Record
		for _, part := range strings.Split(query, "^OR") {
			id := strings.TrimPrefix(part, "sys_id=")
			recs = append(recs, servicenow.Record{"sys_id": id, "name": id})
		}
		return recs, nil
	}}

	recs, err := NewGapResolver(fetcher, &stubStore{}, 50).ResolveGap(context.Background(), testEntity(), ids)
	if err != nil {
		t.Fatalf("ResolveGap failed: %v", err)
	}

	// 120 ids at batch size 50: 50 + 50 + 20
	if len(fetcher.calls) != 3 {
		t.Fatalf("Expected 3 batched fetches, got %d", len(fetcher.calls))
	}
	if n := strings.Count(fetcher.calls[0], "sys_id="); n != 50 {
		t.Errorf("Expected 50 ids in the first batch, got %d", n)
	}
	if n := strings.Count(fetcher.calls[2], "sys_id="); n != 20 {
		t.Errorf("Expected 20 ids in the last batch, got %d", n)
	}

	if len(recs) != 120 {
		t.Fatalf("Expected 120 backfilled records, got %d", len(recs))
	}
	if recs[0][HashField] == "" {
		t.Error("Backfilled records must be fingerprinted like any other")
	}
}
