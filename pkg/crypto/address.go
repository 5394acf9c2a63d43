// Package crypto provides the account identity and message-signature
// primitives used to prove control of an account when claiming a badge.
//
// Accounts are 20-byte secp256k1 addresses. Signatures follow the
// personal-sign convention used by common wallet tooling: the signed digest is
// Keccak-256 over a length-prefixed message, and the signature is 65 bytes
// r || s || v.
package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size of an account address in bytes.
const AddressLength = 20

// Common errors returned by this package.
var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Address identifies an account.
type Address [AddressLength]byte

// ParseAddress decodes a hex address with an optional 0x prefix.
// Parsing is case-insensitive; mixed-case checksums are not enforced.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidAddress, AddressLength*2, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the 0x-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
