package emit

import (
	"context"
	"sync/atomic"

	"github.com/tierkreisgo/tierkreis/controller"
)

// ControllerAdapter bridges controller.Emitter (the run loop's minimal,
// synchronous, loc-addressed sink) onto the richer Emitter this package
// provides (RunID/Step-addressed, batchable, flushable). The run loop has
// no notion of a flat step counter, so Adapter assigns one itself from the
// order events arrive in — good enough for LogEmitter/OTelEmitter's
// human-facing output, which only ever wants "events so far, in order".
type ControllerAdapter struct {
	runID string
	inner Emitter
	step  atomic.Int64
}

// NewControllerAdapter wraps inner so it can be passed to
// controller.WithEmitter. Every event it forwards carries runID.
func NewControllerAdapter(runID string, inner Emitter) *ControllerAdapter {
	return &ControllerAdapter{runID: runID, inner: inner}
}

// Emit implements controller.Emitter.
func (a *ControllerAdapter) Emit(_ context.Context, ev controller.Event) {
	a.inner.Emit(Event{
		RunID:  a.runID,
		Step:   int(a.step.Add(1)),
		NodeID: ev.Loc.String(),
		Msg:    string(ev.Kind),
		Meta:   map[string]interface{}{"message": ev.Message},
	})
}

// Flush delegates to the wrapped Emitter.
func (a *ControllerAdapter) Flush(ctx context.Context) error {
	return a.inner.Flush(ctx)
}

var _ controller.Emitter = (*ControllerAdapter)(nil)
