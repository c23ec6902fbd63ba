// Package pipeline defines the core types shared across the scrape pipeline.
package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// FetchStatus classifies the outcome of a fetch attempt sequence.
type FetchStatus string

// Fetch outcome classes. Transient failures were retried before the
// fetcher gave up; permanent failures are never retried.
const (
	FetchSuccess   FetchStatus = "success"
	FetchTransient FetchStatus = "transient"
	FetchPermanent FetchStatus = "permanent"
)

// FetchResult is the classified outcome of fetching one page. Body is
// populated only when Status is FetchSuccess.
type FetchResult struct {
	URL        string
	Status     FetchStatus
	StatusCode int
	Body       []byte
	Attempts   int
	Elapsed    time.Duration
	Err        error
}

// RawFieldSet is one item as extracted by a target parser: untyped
// text values keyed by target-defined field names, plus provenance.
type RawFieldSet struct {
	SourceURL string
	Fields    map[string]string
}

// Record is the canonical, validated form of a scraped listing.
// Key is stable across runs for the same logical item; ContentHash
// changes iff any canonical field value changes.
type Record struct {
	Key          string          `json:"key"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category,omitempty"`
	Rating       string          `json:"rating,omitempty"`
	Availability string          `json:"availability,omitempty"`
	Description  string          `json:"description,omitempty"`
	SourceURL    string          `json:"source_url"`
	ContentHash  string          `json:"content_hash"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// UpsertOutcome reports what a Store.Upsert did for a record.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// Target is one configured source: a parser-type tag plus seed URLs.
type Target struct {
	Name string   `json:"name" mapstructure:"name"`
	Type string   `json:"type" mapstructure:"type"`
	URLs []string `json:"urls" mapstructure:"urls"`
}

// FailureKind labels why an item or page was skipped during a run.
type FailureKind string

// Failure kinds surfaced in RunStats so operators can tell which
// pipeline stage is degrading.
const (
	FailFetchTransient FailureKind = "fetch_transient"
	FailFetchPermanent FailureKind = "fetch_permanent"
	FailParse          FailureKind = "parse"
	FailValidation     FailureKind = "validation"
)

// RunState is the lifecycle state of a run.
type RunState string

// Run states.
const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// RunStats aggregates the outcome of one complete run.
type RunStats struct {
	RunID     string              `json:"run_id"`
	State     RunState            `json:"state"`
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
	Created   int                 `json:"created"`
	Updated   int                 `json:"updated"`
	Unchanged int                 `json:"unchanged"`
	Failed    map[FailureKind]int `json:"failed"`
	Started   time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
}

// TotalFailed sums failures across all kinds.
func (s RunStats) TotalFailed() int {
	n := 0
	for _, c := range s.Failed {
		n += c
	}
	return n
}
