package emit

import "context"

// NullEmitter discards every event. Useful as the default when a run has no
// observability backend configured.
type NullEmitter struct{}

// NewNullEmitter builds a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(event Event) {}

func (n *NullEmitter) EmitBatch(_ context.Context, _ []Event) error { return nil }

func (n *NullEmitter) Flush(_ context.Context) error { return nil }

var _ Emitter = (*NullEmitter)(nil)
