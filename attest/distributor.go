package attest

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vulcan-project/leia/bus"
	"github.com/vulcan-project/leia/spongent"
)

const (
	// AttestSendID is the CAN id the distributor broadcasts bootstrap frames on.
	AttestSendID uint32 = 0x555
	// AttestRecvID is the CAN id the responder listens for acknowledgements on.
	AttestRecvID uint32 = 0x556
)

// attestedChallenge is the fixed 4-byte associated data used to derive the
// expected response MAC for a bootstrapped connection (§4.5).
var attestedChallenge = [4]byte{0xA7, 0x7E, 0x57, 0xED}

type pendingAck struct {
	connID      uint16
	expectedMAC [8]byte
}

// Distributor runs the one-shot bootstrap sequence that wraps a fresh
// per-connection key to each protected module and records the MAC it
// expects back during acknowledgement.
type Distributor struct {
	oracle  spongent.Oracle
	sender  bus.Sender
	log     zerolog.Logger
	pending map[uint16][]pendingAck
}

// NewDistributor constructs an empty Distributor.
func NewDistributor(oracle spongent.Oracle, sender bus.Sender, log zerolog.Logger) *Distributor {
	return &Distributor{
		oracle:  oracle,
		sender:  sender,
		log:     log.With().Str("component", "attest-distributor").Logger(),
		pending: make(map[uint16][]pendingAck),
	}
}

// Bootstrap distributes connection keys to every participating PM, in the
// order given (sender-side PMs must precede receivers, §4.5).
func (d *Distributor) Bootstrap(participations []Participation, connKeys ConnectionKeys) error {
	for _, p := range participations {
		for _, connID := range p.ConnIDs {
			connKey, ok := connKeys[connID]
			if !ok {
				return errors.Errorf("attest: no connection key generated for connection %#x", connID)
			}
			if err := d.bootstrapOne(p.PMID, p.PMKey, connID, connKey); err != nil {
				return errors.Wrapf(err, "attest: bootstrap pm %#x connection %#x", p.PMID, connID)
			}
		}
	}
	return nil
}

func (d *Distributor) bootstrapOne(pmID uint16, pmKey spongent.Key, connID uint16, connKey spongent.Key) error {
	var pt [22]byte
	binary.LittleEndian.PutUint16(pt[0:2], connID)
	copy(pt[6:22], connKey[:])

	ct, tag, err := d.oracle.Wrap(pmKey, attestWrapAD[:], pt[:])
	if err != nil {
		return errors.Wrap(err, "wrap bootstrap payload")
	}

	var out [24]byte
	binary.LittleEndian.PutUint16(out[0:2], pmID)
	copy(out[2:24], ct)

	d.sender.Send(AttestSendID, out[0:8])
	d.sender.Send(AttestSendID, out[8:16])
	d.sender.Send(AttestSendID, out[16:24])
	d.sender.Send(AttestSendID, tag[0:8])
	d.sender.Send(AttestSendID, tag[8:16])

	expectedFull, err := d.oracle.Mac(connKey, attestedChallenge[:])
	if err != nil {
		return errors.Wrap(err, "derive expected response mac")
	}
	var expected [8]byte
	copy(expected[:], expectedFull[8:])

	d.pending[pmID] = append(d.pending[pmID], pendingAck{connID: connID, expectedMAC: expected})
	d.log.Debug().Uint16("pm", pmID).Uint16("conn", connID).Msg("bootstrap sequence sent")
	return nil
}

// attestWrapAD is the fixed all-zero associated data the distributor wraps
// bootstrap payloads under; the PM has no other context to authenticate
// against at this stage (§4.5).
var attestWrapAD = [4]byte{}

func (d *Distributor) expectedMAC(pmID, connID uint16) ([8]byte, bool) {
	for _, ack := range d.pending[pmID] {
		if ack.connID == connID {
			return ack.expectedMAC, true
		}
	}
	return [8]byte{}, false
}

func (d *Distributor) clearExpectedMAC(pmID, connID uint16) {
	acks := d.pending[pmID]
	for i, ack := range acks {
		if ack.connID == connID {
			d.pending[pmID] = append(acks[:i], acks[i+1:]...)
			return
		}
	}
}
