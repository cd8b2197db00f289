// Package attest implements the trusted-enclave side of key distribution:
// a one-shot bootstrap distributor that wraps fresh per-connection keys to
// each protected module (PM), and a responder that listens for the PM's
// acknowledgement of that bootstrap (§4.5, §4.6).
package attest

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vulcan-project/leia/spongent"
)

const (
	provisioningIterations = 10000
	provisioningSeed       = "leia-enclave"
)

// DeriveProvisioningKey derives a deterministic k_pm from a human-memorable
// passphrase, the way the teacher derives its own AuthKey from an operator
// password (§4.7). Development/demo convenience only; production deployments
// supply k_pm from a real key store.
func DeriveProvisioningKey(passphrase string) spongent.Key {
	raw := pbkdf2.Key([]byte(passphrase), []byte(provisioningSeed), provisioningIterations, spongent.KeySize, sha256.New)
	var key spongent.Key
	copy(key[:], raw)
	return key
}

// Participation describes one PM's membership in the bootstrap: its id,
// pre-shared module key, and the connections it needs to learn keys for.
// Ordering within a participation list is significant (§4.5): the
// sender-side PM of a connection must appear before the receiver.
type Participation struct {
	PMID    uint16
	PMKey   spongent.Key
	ConnIDs []uint16
}

// ConnectionKeys maps a connection id to its freshly generated k_conn.
type ConnectionKeys map[uint16]spongent.Key
