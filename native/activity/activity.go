package activity

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"offergate/core/events"
	"offergate/core/types"
	"offergate/native/eligibility"
)

// Module is the capability surface the claim orchestrator needs from an
// activity variant. Each variant is a concrete type selected at campaign
// creation; shared behaviour lives in Base by composition.
type Module interface {
	Type() string
	CheckEligibility(user [20]byte, now uint64) (bool, error)
	VerifyProof(user [20]byte, proof *eligibility.Proof, now uint64) error
	RecordActivity(caller, user [20]byte, amount *big.Int, proof *eligibility.Proof, now uint64) error
	Config() Config
	SetSigningKey(caller, key [20]byte) error
	SetProofValidity(caller [20]byte, seconds uint64) error
}

// ledgerState is the live balance read used by the hold variant.
type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
}

// recordState persists accumulated criterion state for the purchase variant.
type recordState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Base carries the fields and checks every activity variant shares: the
// campaign identity, owner, configured window and the proof scheme. The
// per-instance mutex serializes tally read-modify-writes and proof-scheme
// updates against the concurrent ingestion and verification paths.
type Base struct {
	mu            sync.Mutex
	campaignID    [32]byte
	typeTag       string
	owner         [20]byte
	cfg           Config
	signingKey    [20]byte
	proofValidity uint64
	verifier      *eligibility.Verifier
	emitter       events.Emitter
}

func newBase(campaignID [32]byte, typeTag string, owner [20]byte, cfg Config, verifier *eligibility.Verifier) (*Base, error) {
	if verifier == nil {
		verifier = eligibility.NewVerifier(nil)
	}
	if !cfg.ListingStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown listing status %d", ErrInvalidConfig, cfg.ListingStatus)
	}
	if cfg.WindowEnd != 0 && cfg.WindowEnd < cfg.WindowStart {
		return nil, fmt.Errorf("%w: window end before start", ErrInvalidConfig)
	}
	for i, crit := range cfg.Criteria {
		if strings.TrimSpace(crit.Asset) == "" {
			return nil, fmt.Errorf("%w: criterion %d missing asset", ErrInvalidConfig, i)
		}
		if crit.Threshold != nil && crit.Threshold.Sign() < 0 {
			return nil, fmt.Errorf("%w: criterion %d negative threshold", ErrInvalidConfig, i)
		}
	}
	return &Base{
		campaignID: campaignID,
		typeTag:    typeTag,
		owner:      owner,
		cfg:        cfg.Clone(),
		verifier:   verifier,
		emitter:    events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Base) SetEmitter(emitter events.Emitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// Type returns the activity type tag.
func (b *Base) Type() string { return b.typeTag }

// Config returns a copy of the configured criteria and window.
func (b *Base) Config() Config { return b.cfg.Clone() }

// SigningKey returns the address proofs must be signed by.
func (b *Base) SigningKey() [20]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signingKey
}

// ProofValidity returns the validity window in seconds.
func (b *Base) ProofValidity() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.proofValidity
}

// SetSigningKey replaces the proof signing key. Owner-only.
func (b *Base) SetSigningKey(caller, key [20]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.owner {
		return ErrUnauthorized
	}
	b.signingKey = key
	return nil
}

// SetProofValidity replaces the proof validity window. Owner-only.
func (b *Base) SetProofValidity(caller [20]byte, seconds uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.owner {
		return ErrUnauthorized
	}
	b.proofValidity = seconds
	return nil
}

// VerifyProof validates the signed attestation for user at the given time.
func (b *Base) VerifyProof(user [20]byte, proof *eligibility.Proof, now uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.verifyProofLocked(user, proof, now)
}

func (b *Base) verifyProofLocked(user [20]byte, proof *eligibility.Proof, now uint64) error {
	return b.verifier.Verify(user, proof, b.typeTag, b.signingKey, b.proofValidity, now)
}

// withinWindow reports whether now falls inside the configured campaign
// window. A zero end leaves the window open-ended.
func (b *Base) withinWindow(now uint64) bool {
	if now < b.cfg.WindowStart {
		return false
	}
	if b.cfg.WindowEnd != 0 && now > b.cfg.WindowEnd {
		return false
	}
	return true
}

// authorizeIngestionLocked gates the privileged activity-recording path: the
// owner may record directly, anyone else must present a valid proof. Callers
// hold the instance lock.
func (b *Base) authorizeIngestionLocked(caller, user [20]byte, proof *eligibility.Proof, now uint64) error {
	if caller == b.owner {
		return nil
	}
	if proof == nil {
		return ErrUnauthorized
	}
	if err := b.verifyProofLocked(user, proof, now); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

func (b *Base) emitRecorded(user [20]byte, amount, total *big.Int, count uint64) {
	if b.emitter == nil {
		return
	}
	b.emitter.Emit(events.ActivityRecorded{
		ID:     b.campaignID,
		User:   user,
		Amount: amount,
		Total:  total,
		Count:  count,
	})
}
