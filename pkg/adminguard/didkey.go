package adminguard

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidKeyDID is returned for subjects that are not Ed25519 did:key DIDs.
var ErrInvalidKeyDID = errors.New("invalid did:key")

const keyDIDPrefix = "did:key:z"

// ed25519Multicodec is the varint multicodec prefix for Ed25519 public keys.
var ed25519Multicodec = []byte{0xed, 0x01}

// NewKeyDID returns the did:key identifier for an Ed25519 public key, or ""
// if the key has the wrong size.
func NewKeyDID(pub ed25519.PublicKey) string {
	if len(pub) != ed25519.PublicKeySize {
		return ""
	}
	prefixed := make([]byte, 0, len(ed25519Multicodec)+len(pub))
	prefixed = append(prefixed, ed25519Multicodec...)
	prefixed = append(prefixed, pub...)
	return keyDIDPrefix + base58.Encode(prefixed)
}

// PublicKeyFromKeyDID extracts the Ed25519 public key from a did:key.
func PublicKeyFromKeyDID(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, keyDIDPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeyDID, did)
	}
	raw, err := base58.Decode(strings.TrimPrefix(did, keyDIDPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyDID, err)
	}
	if len(raw) != len(ed25519Multicodec)+ed25519.PublicKeySize ||
		raw[0] != ed25519Multicodec[0] || raw[1] != ed25519Multicodec[1] {
		return nil, fmt.Errorf("%w: not an Ed25519 key", ErrInvalidKeyDID)
	}
	return ed25519.PublicKey(raw[len(ed25519Multicodec):]), nil
}
