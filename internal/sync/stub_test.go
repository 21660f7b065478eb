package sync

import (
	"context"
	"time"

	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// stubFetcher records queries and answers them via respond.
type stubFetcher struct {
	respond func(resource, query string) ([]servicenow.Record, error)
	calls   []string
}

func (f *stubFetcher) FetchAll(_ context.Context, resource, query string, _ []string) ([]servicenow.Record, error) {
	f.calls = append(f.calls, query)
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(resource, query)
}

// stubStore is an in-memory ReferenceStore with per-method error taps.
type stubStore struct {
	fingerprints    map[string]string
	fingerprintsErr error

	maxUpdated time.Time
	hasMax     bool
	maxErr     error

	ids    map[string]struct{}
	idsErr error

	refValues map[string][]string // column → values
	refErr    error
}

func (s *stubStore) Fingerprints(_ string, ids []string) (map[string]string, error) {
	if s.fingerprintsErr != nil {
		return nil, s.fingerprintsErr
	}
	out := make(map[string]string)
	for _, id := range ids {
		if h, ok := s.fingerprints[id]; ok {
			out[id] = h
		}
	}
	return out, nil
}

func (s *stubStore) MaxUpdatedAt(string) (time.Time, bool, error) {
	return s.maxUpdated, s.hasMax, s.maxErr
}

func (s *stubStore) IDs(string) (map[string]struct{}, error) {
	if s.idsErr != nil {
		return nil, s.idsErr
	}
	return s.ids, nil
}

func (s *stubStore) DistinctRefValues(_, column string) ([]string, error) {
	if s.refErr != nil {
		return nil, s.refErr
	}
	return s.refValues[column], nil
}
