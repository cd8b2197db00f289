// Package spongent provides the authenticated-primitive oracle LeiA is built
// on top of: a MAC over arbitrary associated data, and an authenticated
// encryption ("wrap") operation. The real Spongent lightweight sponge is an
// external collaborator the core never implements directly (§1); AESOracle
// is the concrete stand-in used by this deployment, built from the same
// AES-CMAC primitive the reference secure-channel implementation uses for
// its own session-key KDF and MAC chaining.
package spongent

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/enceve/crypto/cmac"
	"github.com/pkg/errors"
)

// KeySize is the width of every key the oracle accepts.
const KeySize = 16

// TagSize is the width of a full (untruncated) MAC or wrap tag.
const TagSize = 16

// Key is a symmetric key for the oracle.
type Key [KeySize]byte

// Oracle is the narrow interface LeiA drives the Spongent primitive through.
type Oracle interface {
	// Mac computes a deterministic 16-byte authentication tag over ad under key.
	Mac(key Key, ad []byte) ([TagSize]byte, error)
	// Wrap authenticates-and-encrypts pt under key with associated data ad,
	// returning the ciphertext (same length as pt) and a 16-byte tag.
	Wrap(key Key, ad, pt []byte) (ct []byte, tag [TagSize]byte, err error)
}

// AESOracle realizes Oracle with AES-CMAC (for Mac, and for the tag half of
// Wrap) and AES-CTR with a keystream seed derived from the associated data
// (for the ciphertext half of Wrap).
type AESOracle struct{}

// NewAESOracle constructs the AES-backed Spongent oracle stand-in.
func NewAESOracle() AESOracle { return AESOracle{} }

func cmacSum(key Key, data []byte) ([TagSize]byte, error) {
	var out [TagSize]byte

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return out, errors.Wrap(err, "spongent: construct AES cipher")
	}

	mac, err := cmac.New(block)
	if err != nil {
		return out, errors.Wrap(err, "spongent: construct CMAC")
	}

	if _, err := mac.Write(data); err != nil {
		return out, errors.Wrap(err, "spongent: write CMAC input")
	}

	sum := mac.Sum(nil)
	copy(out[:], sum)
	return out, nil
}

// Mac implements Oracle.
func (AESOracle) Mac(key Key, ad []byte) ([TagSize]byte, error) {
	return cmacSum(key, ad)
}

// Wrap implements Oracle. The counter-mode IV is derived by CMAC-ing the
// associated data under the same key, truncated to one AES block; this keeps
// Wrap deterministic given (key, ad) without requiring a separate nonce
// collaborator, and (unlike a CBC pass) keeps the ciphertext exactly as long
// as pt, matching the spec's pure `wrap(k, ad, pt) -> (ct, tag)` shape.
func (o AESOracle) Wrap(key Key, ad, pt []byte) ([]byte, [TagSize]byte, error) {
	var tag [TagSize]byte

	ivSeed, err := cmacSum(key, ad)
	if err != nil {
		return nil, tag, err
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, tag, errors.Wrap(err, "spongent: construct AES cipher")
	}

	ct := make([]byte, len(pt))
	cipher.NewCTR(block, ivSeed[:aes.BlockSize]).XORKeyStream(ct, pt)

	tagInput := make([]byte, 0, len(ad)+len(ct))
	tagInput = append(tagInput, ad...)
	tagInput = append(tagInput, ct...)
	tag, err = cmacSum(key, tagInput)
	if err != nil {
		return nil, tag, err
	}

	return ct, tag, nil
}
