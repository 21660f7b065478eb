package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// Bookkeeping fields added by the ETL itself.
const (
	HashField      = "etl_hash"
	CreatedAtField = "etl_created_at"
	UpdatedAtField = "etl_updated_at"
)

// excludedFromHash lists fields that mutate without a meaningful
// business change. Hashing them would defeat deduplication: the source
// bumps sys_updated_on on no-op saves, and the etl_* fields change on
// every pass.
var excludedFromHash = map[string]struct{}{
	HashField:      {},
	CreatedAtField: {},
	UpdatedAtField: {},
	"sys_created_on": {},
	"sys_updated_on": {},
}

// Fingerprint computes a stable content digest over a record's business
// fields. Keys are sorted before digesting, so logically equal records
// hash identically regardless of field order.
func Fingerprint(r servicenow.Record) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if _, skip := excludedFromHash[k]; skip {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s=%v", k, r[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Tag returns a copy of the record carrying its fingerprint and ETL
// timestamps. The input record is not modified.
func Tag(r servicenow.Record, now time.Time) servicenow.Record {
	out := r.Clone()
	out[CreatedAtField] = now
	out[UpdatedAtField] = now
	out[HashField] = Fingerprint(out)
	return out
}

// Prepare runs the full pre-persistence pipeline on raw API records:
// reference flattening, boolean normalization, then tagging. Empty
// records are dropped.
func Prepare(ent config.EntitySettings, recs []servicenow.Record, now time.Time) []servicenow.Record {
	out := make([]servicenow.Record, 0, len(recs))
	for _, rec := range recs {
		if len(rec) == 0 {
			continue
		}
		rec = servicenow.Flatten(rec)
		rec = servicenow.NormalizeBools(rec, ent.BoolFields)
		out = append(out, Tag(rec, now))
	}
	return out
}
