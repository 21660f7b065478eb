package servicenow

import (
	"testing"
	"time"
)

func TestRecordID(t *testing.T) {
	rec := Record{"sys_id": "abc123", "name": "Test"}
	if rec.ID() != "abc123" {
		t.Errorf("Expected id abc123, got %q", rec.ID())
	}

	// Missing or non-string id yields empty string
	if (Record{}).ID() != "" {
		t.Error("Expected empty id for record without sys_id")
	}
	if (Record{"sys_id": 42}).ID() != "" {
		t.Error("Expected empty id for non-string sys_id")
	}
}

func TestFlatten(t *testing.T) {
	rec := Record{
		"sys_id":  "inc1",
		"number":  "INC0001",
		"company": map[string]interface{}{"value": "c1", "link": "https://example/api/now/table/core_company/c1"},
	}

	flat := Flatten(rec)

	if flat["company"] != "c1" {
		t.Errorf("Expected reference collapsed to its value, got %v", flat["company"])
	}
	if dv, ok := flat["dv_company"]; !ok || dv != "" {
		t.Errorf("Expected empty dv_company companion column, got %v (present=%v)", dv, ok)
	}
	if flat["number"] != "INC0001" {
		t.Error("Plain fields should pass through unchanged")
	}

	// Input record must not be modified
	if _, ok := rec["dv_company"]; ok {
		t.Error("Flatten should not mutate its input")
	}
}

func TestNormalizeBools(t *testing.T) {
	rec := Record{
		"active":   "true",
		"customer": "1",
		"vendor":   true,
		"fax":      "1", // not in the list, stays a string
	}

	out := NormalizeBools(rec, []string{"active", "customer", "vendor", "manufacturer"})

	for _, f := range []string{"active", "customer", "vendor"} {
		if out[f] != true {
			t.Errorf("Expected %s normalized to true, got %v", f, out[f])
		}
	}
	if out["fax"] != "1" {
		t.Errorf("Fields outside the list must not change, got %v", out["fax"])
	}
	if rec["active"] != "true" {
		t.Error("NormalizeBools should not mutate its input")
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := FormatTime(ts); got != "2025-03-14 09:26:53" {
		t.Errorf("Expected table-API layout, got %q", got)
	}
}
