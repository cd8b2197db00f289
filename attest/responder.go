package attest

import (
	"bytes"
	"encoding/binary"

	"github.com/rs/zerolog"
)

type responderState int

const (
	idle responderState = iota
	awaiting
)

// Responder implements the two-frame acknowledgement dialogue a PM uses to
// confirm it decrypted and installed its bootstrapped connection key (§4.6).
// A mismatched or unknown acknowledgement is logged but never unwinds
// protocol state (§7): a misbehaving PM simply fails to get attested.
type Responder struct {
	distributor *Distributor
	log         zerolog.Logger

	state  responderState
	pmID   uint16
	connID uint16
}

// NewResponder constructs a Responder bound to the distributor that holds
// the expected acknowledgement MACs.
func NewResponder(d *Distributor, log zerolog.Logger) *Responder {
	return &Responder{
		distributor: d,
		log:         log.With().Str("component", "attest-responder").Logger(),
	}
}

// Recv processes one inbound frame addressed to CAN_ID_ATTEST_RECV.
func (r *Responder) Recv(payload []byte) {
	switch r.state {
	case idle:
		r.recvHeader(payload)
	case awaiting:
		r.recvMAC(payload)
	}
}

func (r *Responder) recvHeader(payload []byte) {
	if len(payload) < 4 {
		r.log.Warn().Int("len", len(payload)).Msg("short attestation header frame")
		return
	}
	r.pmID = binary.LittleEndian.Uint16(payload[0:2])
	r.connID = binary.LittleEndian.Uint16(payload[2:4])
	r.state = awaiting
}

func (r *Responder) recvMAC(payload []byte) {
	pmID, connID := r.pmID, r.connID
	r.state = idle

	expected, ok := r.distributor.expectedMAC(pmID, connID)
	if !ok {
		r.log.Warn().Uint16("pm", pmID).Uint16("conn", connID).Msg("attestation ack for unknown bootstrap")
		return
	}
	r.distributor.clearExpectedMAC(pmID, connID)

	if !bytes.Equal(expected[:], payload) {
		r.log.Warn().Uint16("pm", pmID).Uint16("conn", connID).Msg("attestation ack MAC mismatch")
		return
	}
	r.log.Debug().Uint16("pm", pmID).Uint16("conn", connID).Msg("connection attested")
}
