package crypto

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureLength is the size of an r || s || v signature.
const SignatureLength = 65

// personalPrefix is prepended to every message before hashing.
const personalPrefix = "\x19Ethereum Signed Message:\n"

// Keccak256 returns the legacy Keccak-256 digest of the concatenated inputs.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// PersonalMessageHash returns the digest a personal-sign signature commits to:
// keccak256(prefix || decimal(len(msg)) || msg).
func PersonalMessageHash(msg []byte) []byte {
	return Keccak256([]byte(personalPrefix), []byte(strconv.Itoa(len(msg))), msg)
}

// PubkeyToAddress derives the account address of a public key.
func PubkeyToAddress(pub *secp256k1.PublicKey) Address {
	var a Address
	// Drop the 0x04 marker of the uncompressed encoding.
	digest := Keccak256(pub.SerializeUncompressed()[1:])
	copy(a[:], digest[12:])
	return a
}

// RecoverPersonal recovers the address that produced sig over msg.
//
// Only low-s signatures (s <= N/2) are accepted, so a signature cannot be
// re-encoded as (r, N-s) with the flipped recovery id. A recovery id of 0 or 1
// is read as 27 or 28; both spellings name the same signature.
func RecoverPersonal(msg, sig []byte) (Address, error) {
	if len(sig) != SignatureLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(sig))
	}

	var sValue secp256k1.ModNScalar
	if overflow := sValue.SetByteSlice(sig[32:64]); overflow || sValue.IsOverHalfOrder() {
		return Address{}, fmt.Errorf("%w: s is not in the lower half of the curve order", ErrInvalidSignature)
	}

	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return Address{}, fmt.Errorf("%w: unsupported recovery id %d", ErrInvalidSignature, sig[64])
	}

	// Compact form expected by the recovery routine is v || r || s.
	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, PersonalMessageHash(msg))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PubkeyToAddress(pub), nil
}

// VerifyPersonal reports whether sig is a personal-sign signature by signer
// over exactly msg. Malformed signatures yield false.
func VerifyPersonal(signer Address, msg, sig []byte) bool {
	recovered, err := RecoverPersonal(msg, sig)
	if err != nil {
		return false
	}
	return recovered == signer
}

// PersonalVerifier adapts VerifyPersonal to the badge service's verifier
// dependency.
type PersonalVerifier struct{}

// Verify implements the signature check for a claimed signer.
func (PersonalVerifier) Verify(signer Address, msg, sig []byte) bool {
	return VerifyPersonal(signer, msg, sig)
}

// ParseSignature decodes a hex signature with an optional 0x prefix.
// Length is not checked here; RecoverPersonal rejects wrong-sized input.
func ParseSignature(s string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return sig, nil
}

// FormatSignature encodes sig as 0x-prefixed hex.
func FormatSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}
