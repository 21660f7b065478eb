package sync

import "fmt"

// FetchError wraps a transport/auth failure from the table API. A
// resolve that hits one returns no records at all; partial pages are
// never surfaced as success.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// LookupError wraps a reference-store read failure. Depending on the
// call site it is recovered locally (watermark fallback, diff filter
// fail-open) or propagated (gap computation).
type LookupError struct {
	Op    string
	Table string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup on %s failed: %v", e.Op, e.Table, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// PersistError wraps a write failure against an entity table.
type PersistError struct {
	Table string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting to %s failed: %v", e.Table, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
