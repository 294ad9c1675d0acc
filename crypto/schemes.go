// Package crypto verifies drand beacon signatures under the
// "bls-unchained-g1-rfc9380" scheme: public keys live on G2 (96 bytes),
// signatures live on G1 (48 bytes), and the signed message is the SHA-256
// digest of the big-endian round number alone (no previous signature — the
// scheme is "unchained").
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign"

	// The package github.com/drand/kyber/sign/bls is deprecated in general use
	// because it is vulnerable to rogue public-key attacks against *aggregated*
	// BLS signatures. We never aggregate signatures here — each beacon carries
	// a single already-aggregated signature produced by the drand network, and
	// we only ever call simple (non-aggregating) Verify — so the attack does
	// not apply.
	//nolint:staticcheck
	signBls "github.com/drand/kyber/sign/bls"
)

// SchemeID names the drand scheme this package implements.
const SchemeID = "bls-unchained-g1-rfc9380"

const (
	g1DST = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"
	g2DST = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"
)

// PublicKeySize and SignatureSize are the wire sizes, in bytes, of this
// scheme's compressed group elements.
const (
	PublicKeySize = 96
	SignatureSize = 48
)

// Verifier checks drand beacon signatures under the bls-unchained-g1-rfc9380
// scheme. It is stateless and safe for concurrent use.
type Verifier struct {
	scheme sign.Scheme
	keyGrp kyber.Group
}

// NewVerifier builds a Verifier for the bls-unchained-g1-rfc9380 scheme.
func NewVerifier() *Verifier {
	pairing := bls.NewBLS12381SuiteWithDST([]byte(g1DST), []byte(g2DST))
	return &Verifier{
		scheme: signBls.NewSchemeOnG1(pairing),
		keyGrp: pairing.G2(),
	}
}

// ParsePublicKey decodes a hex-encoded G2 public key (96 bytes, 192 hex
// characters).
func (v *Verifier) ParsePublicKey(hexKey string) (kyber.Point, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	p := v.keyGrp.Point()
	if err := p.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshalling public key: %w", err)
	}
	return p, nil
}

// Digest returns the message signed for a given round: SHA-256 of the
// round number as 8 big-endian bytes.
func Digest(round uint64) []byte {
	h := sha256.New()
	_ = binary.Write(h, binary.BigEndian, round)
	return h.Sum(nil)
}

// VerifySignature checks that sig (raw G1 signature bytes) is a valid
// signature over round under pubkey.
func (v *Verifier) VerifySignature(pubkey kyber.Point, round uint64, sig []byte) error {
	if len(sig) != SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(sig))
	}
	return v.scheme.Verify(pubkey, Digest(round), sig)
}

// RandomnessFromSignature derives the canonical round randomness from its
// signature: SHA-256(signature). Hashing the signature is necessary because
// elliptic-curve points do not map uniformly onto bit strings, while their
// hash does.
func RandomnessFromSignature(sig []byte) [32]byte {
	return sha256.Sum256(sig)
}
