package controller

import (
	"context"
	"time"

	"github.com/tierkreisgo/tierkreis/location"
)

// EventKind tags the handful of occurrences reported through an Emitter.
// The run loop emits node_start, node_error, tick, and node_finish (for the
// root graph only); it does not emit EventLoopIteration or
// EventMapElementDone.
type EventKind string

const (
	EventNodeStart      EventKind = "node_start"
	EventNodeFinish     EventKind = "node_finish"
	EventNodeError      EventKind = "node_error"
	EventLoopIteration  EventKind = "loop_iteration"
	EventMapElementDone EventKind = "map_element"
	EventTick           EventKind = "tick"
)

// Event is one observability record emitted during a run, addressed by Loc
// rather than the flat node IDs a non-hierarchical engine would use.
type Event struct {
	Kind    EventKind
	Loc     location.Loc
	Message string
}

// Emitter receives Events as the run loop progresses. Implementations must
// not block the run loop for long; NullEmitter is the zero-cost default.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// NullEmitter discards every event.
type NullEmitter struct{}

func (NullEmitter) Emit(context.Context, Event) {}

// runConfig holds the options Run/Resume are configured with.
type runConfig struct {
	maxIterations   int
	pollingInterval time.Duration
	emitter         Emitter
	metrics         *Metrics
}

func defaultRunConfig() *runConfig {
	return &runConfig{
		maxIterations:   10000,
		pollingInterval: 10 * time.Millisecond,
		emitter:         NullEmitter{},
		metrics:         nil,
	}
}

// Option configures a Run or Resume call.
type Option func(*runConfig)

// WithMaxIterations caps the number of walker/start ticks before Run gives
// up and returns ErrMaxIterationsExceeded.
func WithMaxIterations(n int) Option {
	return func(c *runConfig) { c.maxIterations = n }
}

// WithPollingInterval sets the sleep between ticks — the run loop's only
// suspension point.
func WithPollingInterval(d time.Duration) Option {
	return func(c *runConfig) { c.pollingInterval = d }
}

// WithEmitter directs observability Events to e instead of discarding them.
func WithEmitter(e Emitter) Option {
	return func(c *runConfig) { c.emitter = e }
}

// WithMetrics attaches a Prometheus-backed Metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(c *runConfig) { c.metrics = m }
}
