package crypto

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PersonalSigner holds an account private key and produces personal-sign
// signatures for it.
type PersonalSigner struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a signer with a fresh random key.
func GenerateKey() (*PersonalSigner, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &PersonalSigner{key: key}, nil
}

// SignerFromHex creates a signer from a 32-byte hex-encoded private key.
func SignerFromHex(s string) (*PersonalSigner, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &PersonalSigner{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

// LoadKey reads a hex private key file written by SaveKey.
func LoadKey(path string) (*PersonalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return SignerFromHex(string(data))
}

// SaveKey writes the private key as hex with owner-only permissions.
func (s *PersonalSigner) SaveKey(path string) error {
	if err := os.WriteFile(path, []byte(s.Hex()+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Hex returns the hex-encoded private key.
func (s *PersonalSigner) Hex() string {
	return hex.EncodeToString(s.key.Serialize())
}

// Address returns the account address of the key.
func (s *PersonalSigner) Address() Address {
	return PubkeyToAddress(s.key.PubKey())
}

// SignPersonal signs msg and returns r || s || v with v in {27, 28}.
func (s *PersonalSigner) SignPersonal(msg []byte) ([]byte, error) {
	compact := ecdsa.SignCompact(s.key, PersonalMessageHash(msg), false)
	if len(compact) != SignatureLength {
		return nil, fmt.Errorf("unexpected compact signature length %d", len(compact))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}
