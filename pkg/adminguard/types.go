// Package adminguard authenticates owner requests to the pledge API.
//
// An admin request carries a short-lived compact JWS in the X-Pledge-Admin
// header. The token is signed with the owner's Ed25519 key, binds the request
// body through a SHA-256 "bh" claim and carries a unique "jti" so that a
// captured token cannot be replayed.
package adminguard

import (
	"crypto/ed25519"
	"errors"
	"time"
)

// HeaderName is the request header carrying the admin token.
const HeaderName = "X-Pledge-Admin"

// Default configuration values.
const (
	// DefaultMaxTokenAge is the token validity window.
	DefaultMaxTokenAge = 60 * time.Second

	// DefaultClockSkewTolerance is the allowed clock drift between parties.
	DefaultClockSkewTolerance = 5 * time.Second

	// DefaultMaxBodySize bounds the request body read by the middleware.
	DefaultMaxBodySize = 1 << 20 // 1MB
)

// Claims are the JWT claims of an admin token.
type Claims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss,omitempty"`
	IssuedAt  int64  `json:"iat"`
	Expiry    int64  `json:"exp"`
	BodyHash  string `json:"bh,omitempty"`
	MessageID string `json:"jti"`
}

// Config holds configuration for a Guard.
type Config struct {
	// Issuer is written into the iss claim of signed tokens.
	Issuer string

	// PrivateKey signs tokens. A verify-only guard leaves it nil.
	PrivateKey ed25519.PrivateKey

	// PublicKey verifies tokens. Derived from PrivateKey when nil.
	PublicKey ed25519.PublicKey

	// KeyID is the kid header of signed tokens.
	KeyID string

	// MaxTokenAge defaults to DefaultMaxTokenAge.
	MaxTokenAge time.Duration

	// ClockSkewTolerance defaults to DefaultClockSkewTolerance.
	ClockSkewTolerance time.Duration

	// MaxBodySize defaults to DefaultMaxBodySize.
	MaxBodySize int64

	// Now overrides the clock (for testing).
	Now func() time.Time
}

var (
	ErrMissingHeader    = errors.New("missing " + HeaderName + " header")
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenFuture      = errors.New("token issued in the future")
	ErrIntegrityFailed  = errors.New("integrity check failed (body hash mismatch)")
	ErrSignatureInvalid = errors.New("signature verification failed")
	ErrReplayed         = errors.New("token already used")
	ErrNoSigningKey     = errors.New("guard has no signing key")
	ErrBodyTooLarge     = errors.New("request body too large")
)
