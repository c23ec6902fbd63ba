package pipeline

import (
	"context"
	"time"
)

// Fetcher retrieves one page. It never returns a Go error for fetch
// outcomes; failures are classified inside the returned FetchResult so
// the caller always receives a terminal classification.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Parser extracts raw field sets from one page body. Parse walks the
// page exactly once and invokes yield for each item found, in document
// order; returning false from yield stops the walk early. A page whose
// anchor structure is missing fails with a *ParseError.
type Parser interface {
	Type() string
	Parse(body []byte, pageURL string, yield func(RawFieldSet) bool) error
}

// Normalizer converts a raw field set into a canonical Record, or
// fails with a *ValidationError when a required field is missing,
// malformed, or out of bounds.
type Normalizer interface {
	Normalize(raw RawFieldSet) (Record, error)
}

// Store is the durable, deduplicated record collection. Upsert is
// atomic per key; List streams every record and is restartable per
// call. Implementations wrap connectivity failures in
// ErrStoreUnavailable.
type Store interface {
	Upsert(ctx context.Context, rec Record) (UpsertOutcome, error)
	Get(ctx context.Context, key string) (Record, bool, error)
	List(ctx context.Context, fn func(Record) error) error
	Close()
}

// Hasher computes hex digests for keys and content hashes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
