package leia_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulcan-project/leia/bus"
	"github.com/vulcan-project/leia/codec"
	"github.com/vulcan-project/leia/leia"
	"github.com/vulcan-project/leia/spongent"
	"github.com/vulcan-project/leia/store"
)

const (
	testConnID = 1
	testAECID  = 0x7FF
)

func keyFrom(seed byte) spongent.Key {
	var k spongent.Key
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

// newPair builds two contexts sharing a connection and an AEC, as if they
// were the two ECUs on either end of one CAN connection.
func newPair(t *testing.T) (a, b *leia.Context, busA, busB *bus.MemoryBus) {
	t.Helper()
	oracle := spongent.NewAESOracle()
	connKey := keyFrom(0x10)
	aecKey := keyFrom(0x20)

	busA, busB = bus.NewMemoryBus(), bus.NewMemoryBus()
	a = leia.NewContext(oracle, busA, store.NewMap(), zerolog.Nop())
	b = leia.NewContext(oracle, busB, store.NewMap(), zerolog.Nop())

	for _, c := range []*leia.Context{a, b} {
		require.NoError(t, c.AddConnection(testConnID, connKey))
		c.SetAEC(testAECID, aecKey)
		require.NoError(t, c.Init())
	}
	return a, b, busA, busB
}

func TestAuthSendRecvRoundTrip(t *testing.T) {
	a, b, busA, _ := newPair(t)

	require.NoError(t, a.AuthSend(testConnID, []byte("hello")))
	require.Len(t, busA.Frames, 2)

	ev, err := b.AuthRecv(busA.Frames[0].EID, busA.Frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.Received, ev.Kind)
	require.NotNil(t, ev.Tag)

	ev, err = b.AuthRecv(busA.Frames[1].EID, busA.Frames[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.Authenticated, ev.Kind)
}

func TestAuthRecvUnknownID(t *testing.T) {
	_, b, _, _ := newPair(t)

	eid := codec.BuildEID(0x42, codec.Data, 1)
	ev, err := b.AuthRecv(eid, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, leia.UnknownID, ev.Kind)
	assert.EqualValues(t, 0x42, ev.ID)
}

func TestAuthRecvMissingMAC(t *testing.T) {
	a, b, busA, _ := newPair(t)

	require.NoError(t, a.AuthSend(testConnID, []byte("one")))
	require.NoError(t, a.AuthSend(testConnID, []byte("two")))
	require.Len(t, busA.Frames, 4)

	ev, err := b.AuthRecv(busA.Frames[0].EID, busA.Frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.Received, ev.Kind)

	// Second Data frame arrives before the first's Mac: the expected-MAC
	// slot is still occupied.
	ev, err = b.AuthRecv(busA.Frames[2].EID, busA.Frames[2].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.MissingMAC, ev.Kind)
}

func TestAuthRecvUnexpectedMAC(t *testing.T) {
	_, b, _, _ := newPair(t)

	macEID := codec.BuildEID(testConnID+1, codec.Mac, 1)
	ev, err := b.AuthRecv(macEID, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, leia.UnexpectedMAC, ev.Kind)
}

func TestAuthRecvIncorrectMACTriggersAuthFail(t *testing.T) {
	a, b, busA, busB := newPair(t)

	require.NoError(t, a.AuthSend(testConnID, []byte("hi")))
	_, err := b.AuthRecv(busA.Frames[0].EID, busA.Frames[0].Payload)
	require.NoError(t, err)

	tampered := append([]byte(nil), busA.Frames[1].Payload...)
	tampered[0] ^= 0xFF

	ev, err := b.AuthRecv(busA.Frames[1].EID, tampered)
	require.NoError(t, err)
	assert.Equal(t, leia.IncorrectMAC, ev.Kind)

	// b escalated to an AUTH_FAIL exchange on its AEC.
	require.Len(t, busB.Frames, 2)
	id, cmd, _, ok := codec.ParseEID(busB.Frames[0].EID)
	require.True(t, ok)
	assert.EqualValues(t, testAECID, id)
	assert.Equal(t, codec.AecEpoch, cmd)
}

func TestAuthRecvDesyncOnCounterRegression(t *testing.T) {
	a, b, busA, busB := newPair(t)

	require.NoError(t, a.AuthSend(testConnID, []byte("one")))
	_, err := b.AuthRecv(busA.Frames[0].EID, busA.Frames[0].Payload)
	require.NoError(t, err)
	_, err = b.AuthRecv(busA.Frames[1].EID, busA.Frames[1].Payload)
	require.NoError(t, err)

	// A replay with a counter below what b has already observed.
	staleEID := codec.BuildEID(testConnID, codec.Data, 0)
	ev, err := b.AuthRecv(staleEID, []byte("replay"))
	require.NoError(t, err)
	assert.Equal(t, leia.Desync, ev.Kind)
	require.Len(t, busB.Frames, 2)
}

// TestAuthFailExchangeResolves drives one full AUTH_FAIL initiation through
// to the resolving side's response: b detects an incorrect MAC and opens an
// AUTH_FAIL on its AEC; a receives both halves, authenticates the exchange
// and answers on its own AEC.
func TestAuthFailExchangeResolves(t *testing.T) {
	a, b, busA, busB := newPair(t)

	require.NoError(t, a.AuthSend(testConnID, []byte("hi")))
	_, err := b.AuthRecv(busA.Frames[0].EID, busA.Frames[0].Payload)
	require.NoError(t, err)

	tampered := append([]byte(nil), busA.Frames[1].Payload...)
	tampered[0] ^= 0xFF
	_, err = b.AuthRecv(busA.Frames[1].EID, tampered)
	require.NoError(t, err)
	require.Len(t, busB.Frames, 2)

	busA.Reset()

	ev, err := a.AuthRecv(busB.Frames[0].EID, busB.Frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.Resynced, ev.Kind)

	ev, err = a.AuthRecv(busB.Frames[1].EID, busB.Frames[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, leia.Authenticated, ev.Kind)

	// a answered on its own AEC, not on the data connection.
	require.Len(t, busA.Frames, 2)
	id, _, _, ok := codec.ParseEID(busA.Frames[0].EID)
	require.True(t, ok)
	assert.EqualValues(t, testAECID, id)
}
