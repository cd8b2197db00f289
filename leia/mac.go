package leia

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/vulcan-project/leia/spongent"
)

// adSize is the fixed associated-data buffer width for mac_create (§4.2):
// LE16(counter) || LE16(id) || msg, zero-padded.
const adSize = 12

// maxMsgLen is the largest application payload mac_create accepts.
const maxMsgLen = 8

// macCreate computes the 8-byte truncated MAC (the last 8 bytes of the full
// oracle MAC) over (counter, id, msg) under the session key.
func macCreate(oracle spongent.Oracle, sessionKey spongent.Key, id uint16, msg []byte, counter uint16) ([8]byte, error) {
	var out [8]byte

	if len(msg) > maxMsgLen {
		return out, errors.Errorf("mac_create: message length %d exceeds %d bytes", len(msg), maxMsgLen)
	}

	var ad [adSize]byte
	binary.LittleEndian.PutUint16(ad[0:2], counter)
	binary.LittleEndian.PutUint16(ad[2:4], id)
	copy(ad[4:4+len(msg)], msg)

	full, err := oracle.Mac(sessionKey, ad[:])
	if err != nil {
		return out, errors.Wrap(err, "mac_create")
	}

	copy(out[:], full[8:])
	return out, nil
}
