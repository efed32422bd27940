package events

import (
	"context"
	"time"

	"github.com/energizer-project/realmlink/internal/protocol"
)

// Forwarder turns facade notifications into bus events. It satisfies the
// subsystem observer contract.
type Forwarder struct {
	bus   *EventBus
	clock protocol.Clock
}

// NewForwarder creates a Forwarder emitting on bus. clock may be nil.
func NewForwarder(bus *EventBus, clock protocol.Clock) *Forwarder {
	if clock == nil {
		clock = protocol.SystemClock
	}
	return &Forwarder{bus: bus, clock: clock}
}

// RecordDecoded emits EventRecordDecoded.
func (f *Forwarder) RecordDecoded(subsystem string, op protocol.Opcode, record any) {
	f.bus.Emit(context.Background(), Event{
		Type:   EventRecordDecoded,
		Source: subsystem,
		Payload: RecordPayload{
			Subsystem: subsystem,
			Opcode:    op.String(),
			Record:    record,
			At:        f.clock(),
		},
	})
}

// MirrorChanged emits EventMirrorChanged.
func (f *Forwarder) MirrorChanged(subsystem string, snapshot any) {
	f.bus.Emit(context.Background(), Event{
		Type:   EventMirrorChanged,
		Source: subsystem,
		Payload: MirrorPayload{
			Subsystem: subsystem,
			Snapshot:  snapshot,
			At:        f.clock(),
		},
	})
}

// CorrelationTimedOut emits EventCorrelationTimedOut.
func (f *Forwarder) CorrelationTimedOut(operation string, waited time.Duration) {
	f.bus.Emit(context.Background(), Event{
		Type:    EventCorrelationTimedOut,
		Source:  "correlate",
		Payload: CorrelationPayload{Operation: operation, Waited: waited},
	})
}
