package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func testEntity() config.EntitySettings {
	return config.EntitySettings{
		Name:            "users",
		Resource:        "sys_user",
		Table:           "sys_user",
		Fields:          []string{"sys_id", "name", "active"},
		SafetyMargin:    time.Hour,
		DefaultLookback: 7 * 24 * time.Hour,
		InactiveWindow:  30 * 24 * time.Hour,
	}
}

func newTestResolver(fetcher *stubFetcher, store *stubStore) *Resolver {
	r := NewResolver(fetcher, store)
	r.now = func() time.Time { return testNow }
	return r
}

func TestResolveFullDeduplicates(t *testing.T) {
	fetcher := &stubFetcher{respond: func(_, query string) ([]servicenow.Record, error) {
		if query == "active=true" {
			return []servicenow.Record{
				{"sys_id": "u1", "name": "Ada", "active": "true"},
				{"sys_id": "u2", "name": "Grace", "active": "true"},
			}, nil
		}
		// Inactive window: u2 appears again, deactivated
		return []servicenow.Record{
			{"sys_id": "u2", "name": "Grace", "active": "false"},
			{"sys_id": "u3", "name": "Edsger", "active": "false"},
		}, nil
	}}

	res, err := newTestResolver(fetcher, &stubStore{}).Resolve(context.Background(), testEntity(), true)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(fetcher.calls) != 2 {
		t.Fatalf("Expected 2 fetches (active + inactive), got %d", len(fetcher.calls))
	}
	if !strings.HasPrefix(fetcher.calls[1], "active=false^sys_updated_on>=") {
		t.Errorf("Inactive fetch must be window-bounded, got %q", fetcher.calls[1])
	}

	if len(res.Records) != 3 {
		t.Fatalf("Expected 3 unique records, got %d", len(res.Records))
	}
	// On id collision the active version wins
	for _, rec := range res.Records {
		if rec.ID() == "u2" && rec["active"] != "true" {
			t.Error("Active record should win over its inactive duplicate")
		}
	}

	if res.Stats.Mode != ModeFull || res.Stats.Fetched != 4 || res.Stats.New != 3 {
		t.Errorf("Unexpected stats: %+v", res.Stats)
	}
}

func TestResolveIncrementalUsesStoredWatermark(t *testing.T) {
	stored := testNow.Add(-6 * time.Hour)
	store := &stubStore{maxUpdated: stored, hasMax: true}
	fetcher := &stubFetcher{}

	res, err := newTestResolver(fetcher, store).Resolve(context.Background(), testEntity(), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Watermark is the stored maximum widened by the safety margin
	want := "sys_updated_on>=" + servicenow.FormatTime(stored.Add(-time.Hour))
	if fetcher.calls[0] != want {
		t.Errorf("Expected query %q, got %q", want, fetcher.calls[0])
	}
	if res.Stats.WatermarkSource != WatermarkStored {
		t.Errorf("Expected stored watermark source, got %s", res.Stats.WatermarkSource)
	}
}

func TestResolveIncrementalFirstRunFallsBack(t *testing.T) {
	fetcher := &stubFetcher{}
	res, err := newTestResolver(fetcher, &stubStore{}).Resolve(context.Background(), testEntity(), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := "sys_updated_on>=" + servicenow.FormatTime(testNow.Add(-7*24*time.Hour))
	if fetcher.calls[0] != want {
		t.Errorf("Expected default-lookback query %q, got %q", want, fetcher.calls[0])
	}
	if res.Stats.WatermarkSource != WatermarkDefault {
		t.Errorf("Expected default watermark source, got %s", res.Stats.WatermarkSource)
	}
}

func TestResolveIncrementalWatermarkOutage(t *testing.T) {
	store := &stubStore{maxErr: errors.New("relation does not exist")}
	fetcher := &stubFetcher{}

	res, err := newTestResolver(fetcher, store).Resolve(context.Background(), testEntity(), false)
	if err != nil {
		t.Fatalf("A watermark outage must not fail the sync: %v", err)
	}
	// Same fallback window as a first run, but reported distinctly
	if res.Stats.WatermarkSource != WatermarkLookupError {
		t.Errorf("Expected lookup-error watermark source, got %s", res.Stats.WatermarkSource)
	}
}

func TestResolveIncrementalFiltersUnchanged(t *testing.T) {
	// Precompute the fingerprint the unchanged record will carry
	unchanged := Prepare(testEntity(), []servicenow.Record{
		{"sys_id": "u3", "name": "Same", "active": "true"},
	}, testNow)[0]

	store := &stubStore{
		hasMax:     true,
		maxUpdated: testNow.Add(-2 * time.Hour),
		fingerprints: map[string]string{
			"u2": "different-hash",
			"u3": unchanged[HashField].(string),
		},
	}
	fetcher := &stubFetcher{respond: func(_, _ string) ([]servicenow.Record, error) {
		return []servicenow.Record{
			{"sys_id": "u1", "name": "New", "active": "true"},
			{"sys_id": "u2", "name": "Changed", "active": "true"},
			{"sys_id": "u3", "name": "Same", "active": "true"},
		}, nil
	}}

	res, err := newTestResolver(fetcher, store).Resolve(context.Background(), testEntity(), false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(res.Records) != 2 {
		t.Fatalf("Expected the no-op update suppressed, got %d records", len(res.Records))
	}
	if res.Stats.New != 1 || res.Stats.Changed != 1 || res.Stats.Unchanged != 1 {
		t.Errorf("Unexpected stats: %+v", res.Stats)
	}
}

func TestResolveFetchErrorAborts(t *testing.T) {
	fetcher := &stubFetcher{respond: func(_, _ string) ([]servicenow.Record, error) {
		return nil, errors.New("503 service unavailable")
	}}

	_, err := newTestResolver(fetcher, &stubStore{}).Resolve(context.Background(), testEntity(), true)
	if err == nil {
		t.Fatal("Expected a fetch failure to abort the resolve")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("Expected a FetchError, got %T", err)
	}
}
