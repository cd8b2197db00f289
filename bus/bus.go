// Package bus models the CAN send primitive LeiA treats as an external
// collaborator (§1): `send(eid, payload)`, fire-and-forget from the core's
// perspective.
package bus

import "github.com/rs/zerolog"

// Frame is one outbound (or, in tests, observed) CAN frame.
type Frame struct {
	EID     uint32
	Payload []byte
}

// Sender is the narrow interface the core drives to transmit frames. It
// generalizes the teacher's connector.Connector (a request/response HTTP
// transport) down to the spec's one-way send.
type Sender interface {
	Send(eid uint32, payload []byte)
}

// LogBus is a Sender that logs every frame via zerolog; used by the demo CLI
// in place of an actual CAN controller.
type LogBus struct {
	log zerolog.Logger
}

// NewLogBus constructs a LogBus that logs through log.
func NewLogBus(log zerolog.Logger) *LogBus {
	return &LogBus{log: log.With().Str("component", "bus").Logger()}
}

func (b *LogBus) Send(eid uint32, payload []byte) {
	b.log.Debug().
		Uint32("eid", eid).
		Hex("payload", payload).
		Msg("frame sent")
}

// MemoryBus is a Sender test double that records every frame it sees, in
// the role the teacher's protocol-adjacent pack repos use an in-memory sink
// for during tests.
type MemoryBus struct {
	Frames []Frame
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Send(eid uint32, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.Frames = append(b.Frames, Frame{EID: eid, Payload: cp})
}

// Reset clears all recorded frames.
func (b *MemoryBus) Reset() {
	b.Frames = nil
}
