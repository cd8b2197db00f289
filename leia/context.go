// Package leia implements the per-connection authenticated-messaging
// protocol: epoch/counter management, session-key derivation, MAC
// generation and verification, and the AEC resynchronisation dance.
package leia

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vulcan-project/leia/bus"
	"github.com/vulcan-project/leia/codec"
	"github.com/vulcan-project/leia/connection"
	"github.com/vulcan-project/leia/spongent"
	"github.com/vulcan-project/leia/store"
)

// MaxConnections is the size of the fixed connection table (§9).
const MaxConnections = 16

// Context multiplexes a fixed set of data connections plus one AEC
// connection on a single node.
type Context struct {
	connections [MaxConnections]connection.Connection
	aec         connection.Connection

	store  store.Store
	oracle spongent.Oracle
	sender bus.Sender
	log    zerolog.Logger

	// aecPendingRef is the connection id referenced by the most recent
	// AEC AUTH_FAIL exchange, captured when the AecEpoch half arrives so
	// the AecMac half can address its response "on the AEC" (§4.4)
	// instead of re-deriving it from opaque MAC bytes.
	aecPendingRef uint16
}

// NewContext constructs an empty LeiA context.
func NewContext(oracle spongent.Oracle, sender bus.Sender, st store.Store, log zerolog.Logger) *Context {
	return &Context{
		store:  st,
		oracle: oracle,
		sender: sender,
		log:    log.With().Str("component", "leia").Logger(),
	}
}

// AddConnection registers a data connection with its long-term key in the
// first free slot.
func (c *Context) AddConnection(id uint16, key spongent.Key) error {
	if id == 0 {
		return errors.New("leia: connection id 0 is reserved for an empty slot")
	}
	if c.findConnection(id) != nil {
		return errors.Errorf("leia: connection %#x already registered", id)
	}
	for i := range c.connections {
		if c.connections[i].IsEmpty() {
			c.connections[i] = connection.New(id).WithLongTermKey(key)
			return nil
		}
	}
	return errors.Errorf("leia: connection table full (max %d)", MaxConnections)
}

// SetAEC configures the single AEC connection.
func (c *Context) SetAEC(id uint16, key spongent.Key) {
	c.aec = connection.New(id).WithLongTermKey(key)
}

// Init derives the initial session key for every configured connection,
// including the AEC.
func (c *Context) Init() error {
	for i := range c.connections {
		if c.connections[i].IsEmpty() {
			continue
		}
		if err := connection.SessionKeyGen(c.oracle, &c.connections[i]); err != nil {
			return errors.Wrapf(err, "leia: init connection %#x", c.connections[i].ID)
		}
	}
	return errors.Wrap(connection.SessionKeyGen(c.oracle, &c.aec), "leia: init AEC")
}

func (c *Context) findConnection(id uint16) *connection.Connection {
	if c.aec.ID == id {
		return &c.aec
	}
	for i := range c.connections {
		if c.connections[i].ID == id {
			return &c.connections[i]
		}
	}
	return nil
}

// AuthSend sends an authenticated application message on a data connection.
func (c *Context) AuthSend(id uint16, msg []byte) error {
	return c.leiaAuthSend(id, msg, false)
}

func (c *Context) leiaAuthSend(id uint16, msg []byte, isAEC bool) error {
	conn := c.findConnection(id)
	if conn == nil {
		return errors.Errorf("leia: auth_send: unknown connection %#x", id)
	}

	cmd, cmdMac := codec.Data, codec.Mac
	if isAEC {
		cmd, cmdMac = codec.AecEpoch, codec.AecMac
	}

	eid := codec.BuildEID(conn.ID, cmd, conn.Counter)
	c.sender.Send(eid, msg)

	tag, err := macCreate(c.oracle, conn.SessionKey, conn.ID, msg, conn.Counter)
	if err != nil {
		return errors.Wrap(err, "leia: auth_send")
	}

	idMac := conn.ID
	if !isAEC {
		idMac = conn.ID + 1
	}
	eidMac := codec.BuildEID(idMac, cmdMac, conn.Counter)
	c.sender.Send(eidMac, tag[:])

	return connection.UpdateCounters(c.oracle, conn)
}

// AuthFailSend initiates an AUTH_FAIL exchange for the given connection
// after a desync or incorrect MAC (§4.4).
func (c *Context) AuthFailSend(id uint16) error {
	conn := c.findConnection(id)
	if conn == nil {
		return errors.Errorf("leia: auth_fail_send: unknown connection %#x", id)
	}

	conn.Counter = 0
	conn.AuthFailInProgress = true

	var msg [8]byte
	binary.LittleEndian.PutUint64(msg[:], c.aec.Epoch)
	binary.LittleEndian.PutUint16(msg[6:8], id)

	return c.leiaAuthSend(c.aec.ID, msg[:], true)
}

// authFailSendResponse replies to a resolved AUTH_FAIL exchange on the AEC,
// carrying the referenced connection's freshly regenerated epoch.
func (c *Context) authFailSendResponse(referencedID uint16) error {
	conn := c.findConnection(referencedID)
	if conn == nil {
		return errors.Errorf("leia: auth_fail_send_response: unknown connection %#x", referencedID)
	}
	if err := connection.SessionKeyGen(c.oracle, conn); err != nil {
		return errors.Wrap(err, "leia: auth_fail_send_response")
	}

	var msg [8]byte
	binary.LittleEndian.PutUint64(msg[:], conn.Epoch)

	return c.leiaAuthSend(c.aec.ID, msg[:], true)
}

// addExpectedMsg records the expected MAC for an inbound Data or AecEpoch
// frame, syncing the connection's counter to the one that just arrived
// (tolerating a gap within the current epoch).
func (c *Context) addExpectedMsg(id uint16, counter uint16, payload []byte) ([8]byte, error) {
	conn := c.findConnection(id)
	if conn == nil {
		return [8]byte{}, errors.Errorf("leia: unknown connection %#x", id)
	}
	conn.Counter = counter

	tag, err := macCreate(c.oracle, conn.SessionKey, id, payload, counter)
	if err != nil {
		return tag, errors.Wrap(err, "leia: add_expected_msg")
	}
	c.store.Insert(id, store.Tag(tag))
	return tag, nil
}

// AuthRecv parses and dispatches one inbound CAN frame.
func (c *Context) AuthRecv(eid uint32, payload []byte) (Event, error) {
	id, cmd, counter, ok := codec.ParseEID(eid)
	if !ok {
		return Event{}, errors.New("leia: malformed extended id")
	}
	if len(payload) > 8 {
		return Event{}, errors.Errorf("leia: payload length %d exceeds 8 bytes", len(payload))
	}

	switch cmd {
	case codec.Data:
		return c.recvData(id, counter, payload)
	case codec.Mac:
		return c.recvMac(id, payload)
	case codec.AecEpoch:
		return c.recvAecEpoch(id, counter, payload)
	case codec.AecMac:
		return c.recvAecMac(id, payload)
	default:
		return Event{}, errors.Errorf("leia: unknown command code %v", cmd)
	}
}

func (c *Context) recvData(id uint16, counter uint16, payload []byte) (Event, error) {
	conn := c.findConnection(id)
	if conn == nil {
		c.log.Debug().Uint16("id", id).Msg("data frame for unknown connection")
		return Event{Kind: UnknownID, ID: id}, nil
	}

	if counter < conn.Counter {
		c.log.Warn().Uint16("id", id).Msg("counter regression detected, desync")
		c.store.Remove(id)
		if err := c.AuthFailSend(id); err != nil {
			return Event{}, err
		}
		return Event{Kind: Desync, ID: id}, nil
	}

	existed := c.store.Contains(id)
	tag, err := c.addExpectedMsg(id, counter, payload)
	if err != nil {
		return Event{}, err
	}

	if existed {
		c.log.Warn().Uint16("id", id).Msg("new Data frame before previous Mac arrived")
		return Event{Kind: MissingMAC, ID: id}, nil
	}

	tagCopy := tag
	return Event{Kind: Received, ID: id, Tag: &tagCopy}, nil
}

func (c *Context) recvMac(id uint16, payload []byte) (Event, error) {
	if id == 0 {
		return Event{Kind: UnknownID, ID: id}, nil
	}
	msgID := id - 1

	expected, ok := c.store.Get(msgID)
	c.store.Remove(msgID)

	if !ok {
		c.log.Debug().Uint16("id", msgID).Msg("Mac received with no pending Data")
		return Event{Kind: UnexpectedMAC, ID: msgID}, nil
	}

	if !bytes.Equal(expected[:], payload) {
		c.log.Warn().Uint16("id", msgID).Msg("incorrect MAC, initiating AUTH_FAIL")
		if err := c.AuthFailSend(msgID); err != nil {
			return Event{}, err
		}
		return Event{Kind: IncorrectMAC, ID: msgID}, nil
	}

	return Event{Kind: Authenticated, ID: msgID}, nil
}

func (c *Context) recvAecEpoch(id uint16, counter uint16, payload []byte) (Event, error) {
	if id != c.aec.ID {
		return Event{Kind: UnknownID, ID: id}, nil
	}

	// The AUTH_FAIL payload is LE48(epoch) || LE16(referenced connection id).
	var buf [8]byte
	copy(buf[:], payload)
	peerEpoch := binary.LittleEndian.Uint64(buf[:]) & (1<<48 - 1)
	refID := binary.LittleEndian.Uint16(buf[6:8])
	c.aecPendingRef = refID

	if ref := c.findConnection(refID); refID != 0 && ref != nil && peerEpoch > ref.Epoch {
		// A strictly higher epoch prevents replay of a stale AUTH_FAIL.
		ref.Epoch = peerEpoch - 1
		if err := connection.SessionKeyGen(c.oracle, ref); err != nil {
			return Event{}, errors.Wrap(err, "leia: resync")
		}
	}

	if _, err := c.addExpectedMsg(id, counter, payload); err != nil {
		return Event{}, err
	}

	c.log.Debug().Uint16("id", id).Uint16("ref", refID).Msg("AEC epoch notification applied")
	return Event{Kind: Resynced, ID: id}, nil
}

func (c *Context) recvAecMac(id uint16, payload []byte) (Event, error) {
	if id != c.aec.ID {
		return Event{Kind: UnknownID, ID: id}, nil
	}

	expected, ok := c.store.Get(id)
	c.store.Remove(id)

	if !ok || !bytes.Equal(expected[:], payload) {
		return Event{Kind: UnexpectedMAC, ID: id}, nil
	}

	if err := connection.UpdateCounters(c.oracle, &c.aec); err != nil {
		return Event{}, err
	}

	referencedID := c.aecPendingRef
	refConn := c.findConnection(referencedID)
	if refConn == nil {
		c.log.Warn().Uint16("id", referencedID).Msg("AEC response references unknown connection")
		return Event{Kind: Authenticated, ID: id}, nil
	}

	if !refConn.AuthFailInProgress {
		if err := c.authFailSendResponse(referencedID); err != nil {
			return Event{}, err
		}
	}
	refConn.AuthFailInProgress = false

	return Event{Kind: Authenticated, ID: id}, nil
}
