// Package eligibility implements the signed, time-bounded proof scheme that
// attests off-system activity. A proof is issued by the campaign's signing
// key over (user, timestamp, activity type) and expires after the configured
// validity window.
package eligibility

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of a recoverable secp256k1 signature.
	SignatureLength = 65
	// TimestampLength is the size of the big-endian timestamp field.
	TimestampLength = 32
	// ProofLength is the total size of an encoded proof.
	ProofLength = SignatureLength + TimestampLength
)

var (
	ErrProofLength  = errors.New("eligibility: proof must be 97 bytes")
	ErrProofFuture  = errors.New("eligibility: proof timestamp in the future")
	ErrProofExpired = errors.New("eligibility: proof expired")
	ErrBadSignature = errors.New("eligibility: signature does not match signing key")
)

// Proof is the decoded wire form of an eligibility attestation. Proofs are
// constructed off-system and never persisted.
type Proof struct {
	Signature [SignatureLength]byte
	Timestamp uint64
}

// Decode parses the wire encoding: 65-byte signature followed by a 32-byte
// big-endian timestamp.
func Decode(raw []byte) (*Proof, error) {
	if len(raw) != ProofLength {
		return nil, fmt.Errorf("%w, got %d", ErrProofLength, len(raw))
	}
	p := new(Proof)
	copy(p.Signature[:], raw[:SignatureLength])
	for _, b := range raw[SignatureLength : ProofLength-8] {
		if b != 0 {
			return nil, fmt.Errorf("eligibility: timestamp exceeds 64 bits")
		}
	}
	p.Timestamp = binary.BigEndian.Uint64(raw[ProofLength-8:])
	return p, nil
}

// Encode renders the proof in wire form.
func (p *Proof) Encode() []byte {
	out := make([]byte, ProofLength)
	copy(out, p.Signature[:])
	binary.BigEndian.PutUint64(out[ProofLength-8:], p.Timestamp)
	return out
}

// Digest computes the canonical signed message for an eligibility proof:
// keccak256(user ‖ 32-byte big-endian timestamp ‖ activity type tag). The
// raw digest is signed with no message prefix; issuer and verifier apply the
// same convention.
func Digest(user [20]byte, timestamp uint64, activityType string) [32]byte {
	buf := make([]byte, 20+TimestampLength+len(activityType))
	copy(buf, user[:])
	binary.BigEndian.PutUint64(buf[20+TimestampLength-8:20+TimestampLength], timestamp)
	copy(buf[20+TimestampLength:], activityType)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// SignerRecovery recovers the address that signed a 32-byte digest. It is
// injected so tests can run against fixed keys without real key material.
type SignerRecovery interface {
	RecoverSigner(digest [32]byte, sig [SignatureLength]byte) ([20]byte, error)
}

// Secp256k1Recovery is the production SignerRecovery.
type Secp256k1Recovery struct{}

func (Secp256k1Recovery) RecoverSigner(digest [32]byte, sig [SignatureLength]byte) ([20]byte, error) {
	var out [20]byte
	pub, err := ethcrypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return out, fmt.Errorf("recover pubkey: %w", err)
	}
	copy(out[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}

// Verifier validates eligibility proofs for one activity type against the
// configured signing key and validity window.
type Verifier struct {
	recovery SignerRecovery
}

// NewVerifier creates a verifier using the provided recovery primitive. A nil
// recovery falls back to secp256k1.
func NewVerifier(recovery SignerRecovery) *Verifier {
	if recovery == nil {
		recovery = Secp256k1Recovery{}
	}
	return &Verifier{recovery: recovery}
}

// Verify checks freshness first, then recovers the signer and compares it to
// signingKey. An expired proof is rejected regardless of signature validity.
func (v *Verifier) Verify(user [20]byte, proof *Proof, activityType string, signingKey [20]byte, validity uint64, now uint64) error {
	if proof == nil {
		return ErrProofLength
	}
	if proof.Timestamp > now {
		return fmt.Errorf("%w: issued at %d, now %d", ErrProofFuture, proof.Timestamp, now)
	}
	if validity > 0 && now-proof.Timestamp > validity {
		return fmt.Errorf("%w: issued at %d, window %ds", ErrProofExpired, proof.Timestamp, validity)
	}
	digest := Digest(user, proof.Timestamp, activityType)
	signer, err := v.recovery.RecoverSigner(digest, proof.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != signingKey {
		return ErrBadSignature
	}
	return nil
}

// Sign is the issuing side of the scheme, used by operator tooling and tests.
// signFn must produce a 65-byte recoverable signature over the raw digest.
func Sign(user [20]byte, timestamp uint64, activityType string, signFn func(digest [32]byte) ([]byte, error)) (*Proof, error) {
	digest := Digest(user, timestamp, activityType)
	sig, err := signFn(digest)
	if err != nil {
		return nil, err
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("eligibility: signer returned %d bytes, want %d", len(sig), SignatureLength)
	}
	p := &Proof{Timestamp: timestamp}
	copy(p.Signature[:], sig)
	return p, nil
}
