// Package progress defines the crawl-lifecycle events emitted by the run
// loop and the coordinator, and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event records.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunDone  Stage = "RUN_DONE"
	StageAdmitted Stage = "URL_ADMITTED"
	StageRejected Stage = "URL_REJECTED"
	StageCrawled  Stage = "PAGE_CRAWLED"
	StageFailed   Stage = "PAGE_FAILED"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies the crawl run that produced the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// URL is the page URL for per-URL stages; empty for run stages.
	URL string
	// Domain is the page's canonical domain, when known.
	Domain string
	// Outcome carries the rejection reason or terminal crawl outcome.
	Outcome string
	// Links counts same-domain links discovered on a crawled page.
	Links int
	// Dur captures render latency for crawled pages and total duration
	// for run completion.
	Dur time.Duration
	// Note attaches low-volume context such as error text.
	Note string
}

// Validate rejects events that a sink could not attribute.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageAdmitted, StageRejected, StageCrawled, StageFailed:
		if e.URL == "" {
			return errors.New("per-url stages require a url")
		}
	default:
		return errors.New("unknown stage")
	}
	return nil
}
