// Package progress defines the structured events emitted by the run
// coordinator and fans them out to registered sinks. Events are data;
// formatting is a sink concern.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StagePageFetch  Stage = "PAGE_FETCH"
	StageItemStored Stage = "ITEM_STORED"
	StageItemFailed Stage = "ITEM_FAILED"
)

// Event captures one pipeline milestone.
type Event struct {
	// RunID identifies the run that emitted the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Target names the configured target for page and item events.
	Target string
	// URL is the page URL for fetch events.
	URL string
	// Key is the record unique key for item events, when known.
	Key string
	// FetchStatus classifies page fetch outcomes.
	FetchStatus pipeline.FetchStatus
	// Outcome carries the upsert result for stored items.
	Outcome pipeline.UpsertOutcome
	// Failure labels the failure kind for skipped items and pages.
	Failure pipeline.FailureKind
	// Attempts is the fetch attempt count for page events.
	Attempts int
	// Dur captures latency for fetches and run completions.
	Dur time.Duration
	// Note attaches low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePageFetch:
		if e.Target == "" {
			return errors.New("page fetch requires target")
		}
		if e.FetchStatus == "" {
			return errors.New("page fetch requires fetch status")
		}
	case StageItemStored:
		if e.Outcome == "" {
			return errors.New("item stored requires outcome")
		}
	case StageItemFailed:
		if e.Failure == "" {
			return errors.New("item failed requires failure kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
