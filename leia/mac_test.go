package leia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulcan-project/leia/spongent"
)

func TestMacCreateDeterministic(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	copy(key[:], []byte("0123456789abcdef"))

	tag1, err := macCreate(oracle, key, 1, []byte("payload!"), 7)
	require.NoError(t, err)
	tag2, err := macCreate(oracle, key, 1, []byte("payload!"), 7)
	require.NoError(t, err)
	assert.Equal(t, tag1, tag2)
}

func TestMacCreateDiffersByCounter(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	copy(key[:], []byte("0123456789abcdef"))

	tag1, err := macCreate(oracle, key, 1, []byte("payload!"), 7)
	require.NoError(t, err)
	tag2, err := macCreate(oracle, key, 1, []byte("payload!"), 8)
	require.NoError(t, err)
	assert.NotEqual(t, tag1, tag2)
}

func TestMacCreateRejectsOversizedMessage(t *testing.T) {
	oracle := spongent.NewAESOracle()
	var key spongent.Key
	_, err := macCreate(oracle, key, 1, make([]byte, 9), 0)
	assert.Error(t, err)
}
