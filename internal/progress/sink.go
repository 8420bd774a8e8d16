package progress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/furniture-helper/furniture-crawler/internal/clock"
)

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines and tolerate being called concurrently with Close.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies this, so emitting
// components stay unaware of buffering and persistence.
type Emitter interface {
	Emit(evt Event)
}

// RunEmitter stamps every event with the run ID and a timestamp before
// forwarding it, so emitting components only fill in the milestone fields.
type RunEmitter struct {
	runID uuid.UUID
	clk   clock.Clock
	next  Emitter
}

// NewRunEmitter wraps next with run attribution.
func NewRunEmitter(runID uuid.UUID, clk clock.Clock, next Emitter) *RunEmitter {
	return &RunEmitter{runID: runID, clk: clk, next: next}
}

// Emit forwards evt with RunID and TS populated.
func (r *RunEmitter) Emit(evt Event) {
	if r == nil || r.next == nil {
		return
	}
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		if r.clk != nil {
			evt.TS = r.clk.Now()
		} else {
			evt.TS = time.Now().UTC()
		}
	}
	r.next.Emit(evt)
}
