package attest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveProvisioningKeyDeterministic(t *testing.T) {
	k1 := DeriveProvisioningKey("hunter2")
	k2 := DeriveProvisioningKey("hunter2")
	assert.Equal(t, k1, k2)
}

func TestDeriveProvisioningKeyDiffersByPassphrase(t *testing.T) {
	k1 := DeriveProvisioningKey("hunter2")
	k2 := DeriveProvisioningKey("correct-horse-battery-staple")
	assert.NotEqual(t, k1, k2)
}
