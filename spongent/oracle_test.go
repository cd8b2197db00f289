package spongent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulcan-project/leia/spongent"
)

func TestMacDeterministic(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	copy(key[:], []byte("0123456789abcdef"))

	tag1, err := oracle.Mac(key, []byte("some associated data"))
	require.NoError(t, err)
	tag2, err := oracle.Mac(key, []byte("some associated data"))
	require.NoError(t, err)
	assert.Equal(t, tag1, tag2)
}

func TestMacDiffersByKey(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var k1, k2 spongent.Key
	copy(k1[:], []byte("0123456789abcdef"))
	copy(k2[:], []byte("fedcba9876543210"))

	tag1, err := oracle.Mac(k1, []byte("ad"))
	require.NoError(t, err)
	tag2, err := oracle.Mac(k2, []byte("ad"))
	require.NoError(t, err)
	assert.NotEqual(t, tag1, tag2)
}

func TestWrapPreservesLength(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	copy(key[:], []byte("0123456789abcdef"))

	pt := make([]byte, 22)
	for i := range pt {
		pt[i] = byte(i)
	}

	ct, _, err := oracle.Wrap(key, []byte{0, 0, 0, 0}, pt)
	require.NoError(t, err)
	assert.Len(t, ct, len(pt))
	assert.NotEqual(t, pt, ct)
}

func TestWrapDeterministic(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	copy(key[:], []byte("0123456789abcdef"))

	pt := []byte("authenticated!")
	ad := []byte{0xA7, 0x7E, 0x57, 0xED}

	ct, tag1, err := oracle.Wrap(key, ad, pt)
	require.NoError(t, err)

	ct2, tag2, err := oracle.Wrap(key, ad, pt)
	require.NoError(t, err)
	assert.Equal(t, ct, ct2)
	assert.Equal(t, tag1, tag2)
}
