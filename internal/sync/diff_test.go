package sync

import (
	"errors"
	"testing"

	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

func TestFilterChanged(t *testing.T) {
	store := &stubStore{fingerprints: map[string]string{
		"u2": "old-hash",
		"u3": "same-hash",
	}}
	filter := NewDiffFilter(store)

	recs := []servicenow.Record{
		{"sys_id": "u1", HashField: "h1"},        // unseen: new
		{"sys_id": "u2", HashField: "new-hash"},  // differs: changed
		{"sys_id": "u3", HashField: "same-hash"}, // matches: dropped
	}

	kept, stats := filter.FilterChanged("sys_user", recs)

	if len(kept) != 2 {
		t.Fatalf("Expected 2 kept records, got %d", len(kept))
	}
	// Input order is preserved
	if kept[0].ID() != "u1" || kept[1].ID() != "u2" {
		t.Errorf("Expected [u1 u2], got [%s %s]", kept[0].ID(), kept[1].ID())
	}
	if stats.New != 1 || stats.Changed != 1 || stats.Unchanged != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.FailedOpen {
		t.Error("FailedOpen must be false on a successful lookup")
	}
}

func TestFilterChangedFailsOpen(t *testing.T) {
	store := &stubStore{fingerprintsErr: errors.New("connection refused")}
	filter := NewDiffFilter(store)

	recs := []servicenow.Record{
		{"sys_id": "u1", HashField: "h1"},
		{"sys_id": "u2", HashField: "h2"},
	}

	kept, stats := filter.FilterChanged("sys_user", recs)

	// A lookup outage keeps everything rather than dropping records
	if len(kept) != len(recs) {
		t.Fatalf("Expected all %d records kept, got %d", len(recs), len(kept))
	}
	if !stats.FailedOpen {
		t.Error("Expected FailedOpen to be reported")
	}
}

func TestFilterChangedEmpty(t *testing.T) {
	filter := NewDiffFilter(&stubStore{})
	kept, stats := filter.FilterChanged("sys_user", nil)
	if len(kept) != 0 || stats != (DiffStats{}) {
		t.Errorf("Expected no-op on empty input, got %v %+v", kept, stats)
	}
}
