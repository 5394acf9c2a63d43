package adminguard

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// OwnerKey is an Ed25519 owner key pair. Its subject is the did:key of the
// public key.
type OwnerKey struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateOwnerKey creates a fresh owner key pair.
func GenerateOwnerKey() (OwnerKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return OwnerKey{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return OwnerKey{PrivateKey: priv, PublicKey: pub}, nil
}

// Subject returns the did:key identifier used as the owner subject.
func (k OwnerKey) Subject() string {
	return NewKeyDID(k.PublicKey)
}

// SavePrivate writes the private key as a JWK (mode 0600).
func (k OwnerKey) SavePrivate(path string) error {
	return writeJWK(path, jose.JSONWebKey{
		Key:       k.PrivateKey,
		KeyID:     k.Subject(),
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}, 0600)
}

// SavePublic writes the public key as a JWK (mode 0644).
func (k OwnerKey) SavePublic(path string) error {
	return writeJWK(path, jose.JSONWebKey{
		Key:       k.PublicKey,
		KeyID:     k.Subject(),
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}, 0644)
}

func writeJWK(path string, jwk jose.JSONWebKey, perm os.FileMode) error {
	data, err := json.MarshalIndent(jwk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// LoadKey reads a JWK file holding either a private or a public Ed25519 key.
// PrivateKey is nil for public-only files.
func LoadKey(path string) (OwnerKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OwnerKey{}, fmt.Errorf("failed to read key: %w", err)
	}
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return OwnerKey{}, fmt.Errorf("failed to parse JWK: %w", err)
	}

	switch key := jwk.Key.(type) {
	case ed25519.PrivateKey:
		return OwnerKey{PrivateKey: key, PublicKey: key.Public().(ed25519.PublicKey)}, nil
	case ed25519.PublicKey:
		return OwnerKey{PublicKey: key}, nil
	default:
		return OwnerKey{}, fmt.Errorf("unsupported key type %T (want Ed25519)", jwk.Key)
	}
}
