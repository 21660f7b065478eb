package servicenow

import "time"

// IDField is the primary identifier carried by every table-API record.
const IDField = "sys_id"

// TimeLayout is the timestamp format used by the table API for query
// filters and audit fields (sys_created_on, sys_updated_on).
const TimeLayout = "2006-01-02 15:04:05"

// Record is a single table-API row: field name to scalar value.
type Record map[string]interface{}

// ID returns the record identifier, or "" when missing.
func (r Record) ID() string {
	if v, ok := r[IDField].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Flatten converts reference fields from their expanded object form
// ({"value": "...", "link": "..."}) into the plain identifier value.
// A companion dv_<field> column is added empty; display values are
// filled in later by enrichment where configured.
func Flatten(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if ref, ok := v.(map[string]interface{}); ok {
			if val, ok := ref["value"]; ok {
				out[k] = val
				out["dv_"+k] = ""
				continue
			}
		}
		out[k] = v
	}
	return out
}

// NormalizeBools rewrites boolean-like values (true, "true", "1") of the
// named fields to real booleans. Must run before fingerprinting, or the
// same logical record hashes differently between extraction passes.
func NormalizeBools(r Record, fields []string) Record {
	if len(fields) == 0 {
		return r
	}
	out := r.Clone()
	for _, f := range fields {
		v, ok := out[f]
		if !ok {
			continue
		}
		out[f] = v == true || v == "true" || v == "1"
	}
	return out
}

// FormatTime renders a timestamp in the table-API query format.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}
