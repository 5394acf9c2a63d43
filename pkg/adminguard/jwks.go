package adminguard

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// ErrNoOwnerKey is returned when a key set holds no Ed25519 signing key.
var ErrNoOwnerKey = errors.New("no Ed25519 owner key in key set")

// KeySetFetcher downloads JSON Web Key Sets. The owner key is resolved once
// at startup, so nothing is cached.
type KeySetFetcher struct {
	client *http.Client
}

// NewKeySetFetcher creates a fetcher with a 10s HTTP timeout.
func NewKeySetFetcher() *KeySetFetcher {
	return &KeySetFetcher{client: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch returns the key set published at url.
func (f *KeySetFetcher) Fetch(ctx context.Context, url string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key set: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch key set: status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}
	return &set, nil
}

// FetchOwnerKey returns the first Ed25519 signing key published at url.
// Only the public half is ever used.
func (f *KeySetFetcher) FetchOwnerKey(ctx context.Context, url string) (OwnerKey, error) {
	set, err := f.Fetch(ctx, url)
	if err != nil {
		return OwnerKey{}, err
	}
	for _, jwk := range set.Keys {
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		switch key := jwk.Key.(type) {
		case ed25519.PublicKey:
			return OwnerKey{PublicKey: key}, nil
		case ed25519.PrivateKey:
			return OwnerKey{PublicKey: key.Public().(ed25519.PublicKey)}, nil
		}
	}
	return OwnerKey{}, ErrNoOwnerKey
}

// KeySet returns the public key set for k, keyed by its subject.
func (k OwnerKey) KeySet() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       k.PublicKey,
		KeyID:     k.Subject(),
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}}}
}
