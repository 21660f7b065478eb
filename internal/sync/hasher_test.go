package sync

import (
	"testing"
	"time"

	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

func TestFingerprintDeterministic(t *testing.T) {
	rec := servicenow.Record{
		"sys_id": "u1",
		"name":   "Ada Lovelace",
		"email":  "ada@example.com",
		"active": true,
	}

	hash1 := Fingerprint(rec)
	if hash1 == "" {
		t.Fatal("Expected non-empty hash")
	}
	if len(hash1) != 64 {
		t.Errorf("Expected 64-character SHA256 hash, got %d characters", len(hash1))
	}

	// Compute again - should be deterministic
	if hash2 := Fingerprint(rec); hash1 != hash2 {
		t.Error("Fingerprint should be deterministic")
	}

	// A logically equal record built in a different order hashes the same
	same := servicenow.Record{
		"active": true,
		"email":  "ada@example.com",
		"sys_id": "u1",
		"name":   "Ada Lovelace",
	}
	if Fingerprint(same) != hash1 {
		t.Error("Field insertion order must not affect the fingerprint")
	}
}

func TestFingerprintIgnoresBookkeeping(t *testing.T) {
	rec := servicenow.Record{"sys_id": "u1", "name": "Ada"}
	hash1 := Fingerprint(rec)

	// Volatile fields must not affect the hash
	rec2 := rec.Clone()
	rec2["sys_updated_on"] = "2025-03-14 09:00:00"
	rec2["etl_hash"] = "stale"
	rec2["etl_created_at"] = time.Now()
	rec2["etl_updated_at"] = time.Now()
	if Fingerprint(rec2) != hash1 {
		t.Error("Bookkeeping fields must be excluded from the fingerprint")
	}

	// A business field change must affect it
	rec3 := rec.Clone()
	rec3["name"] = "Ada L."
	if Fingerprint(rec3) == hash1 {
		t.Error("Fingerprint should change when content changes")
	}
}

func TestTag(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	rec := servicenow.Record{"sys_id": "u1", "name": "Ada"}

	tagged := Tag(rec, now)

	if tagged[CreatedAtField] != now || tagged[UpdatedAtField] != now {
		t.Error("Expected ETL timestamps on the tagged record")
	}
	if tagged[HashField] != Fingerprint(rec) {
		t.Error("Tagged hash should cover only business fields")
	}
	if _, ok := rec[HashField]; ok {
		t.Error("Tag should not mutate its input")
	}
}

func TestPrepare(t *testing.T) {
	ent := config.EntitySettings{Name: "companies", BoolFields: []string{"customer"}}
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	recs := []servicenow.Record{
		{
			"sys_id":   "c1",
			"customer": "true",
			"parent":   map[string]interface{}{"value": "c9", "link": "https://example/c9"},
		},
		{}, // empty records are dropped
	}

	out := Prepare(ent, recs, now)

	if len(out) != 1 {
		t.Fatalf("Expected 1 prepared record, got %d", len(out))
	}
	if out[0]["customer"] != true {
		t.Error("Expected boolean normalization before hashing")
	}
	if out[0]["parent"] != "c9" {
		t.Error("Expected reference flattening before hashing")
	}
	if out[0][HashField] == "" {
		t.Error("Expected prepared records to carry a fingerprint")
	}

	// Same logical record with the other boolean spelling hashes identically
	again := Prepare(ent, []servicenow.Record{{
		"sys_id":   "c1",
		"customer": "1",
		"parent":   map[string]interface{}{"value": "c9", "link": "https://example/c9"},
	}}, now)
	if again[0][HashField] != out[0][HashField] {
		t.Error("Boolean spelling variants must hash identically")
	}
}
