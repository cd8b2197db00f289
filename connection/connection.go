// Package connection holds the per-connection LeiA session state: counters,
// epoch, long-term and session keys.
package connection

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/vulcan-project/leia/spongent"
)

// EpochMax is the largest legal epoch value (2^56 - 1).
const EpochMax uint64 = 1<<56 - 1

// CounterMax is the largest legal counter value before a rollover is due.
const CounterMax uint16 = 0xFFFF

// Connection is a single LeiA connection's mutable protocol state.
type Connection struct {
	ID                 uint16
	Counter            uint16
	Epoch              uint64
	LongTermKey        spongent.Key
	SessionKey         spongent.Key
	AuthFailInProgress bool
}

// New creates an empty connection slot. ID == 0 means an empty slot
// (§9 "Fixed-size connection table").
func New(id uint16) Connection {
	return Connection{ID: id}
}

// WithLongTermKey returns a copy of c with its long-term integrity key set.
func (c Connection) WithLongTermKey(key spongent.Key) Connection {
	c.LongTermKey = key
	return c
}

// IsEmpty reports whether this slot holds no live connection.
func (c Connection) IsEmpty() bool {
	return c.ID == 0
}

// SessionKeyGen advances the epoch by one, rederives the session key as
// oracle.Mac(k_i, LE64(epoch)), and resets the counter to 1.
func SessionKeyGen(oracle spongent.Oracle, c *Connection) error {
	if c.Epoch == EpochMax {
		return errors.Errorf("connection %#x: epoch at maximum, rollover is fatal", c.ID)
	}

	c.Epoch++

	var epochBuf [8]byte
	binary.LittleEndian.PutUint64(epochBuf[:], c.Epoch)

	tag, err := oracle.Mac(c.LongTermKey, epochBuf[:])
	if err != nil {
		return errors.Wrapf(err, "connection %#x: session key derivation", c.ID)
	}
	c.SessionKey = spongent.Key(tag)
	c.Counter = 1

	return nil
}

// UpdateCounters advances the counter after an outbound send, rolling over
// into a fresh epoch and session key once the counter saturates.
func UpdateCounters(oracle spongent.Oracle, c *Connection) error {
	if c.Counter == CounterMax {
		return SessionKeyGen(oracle, c)
	}
	c.Counter++
	return nil
}
