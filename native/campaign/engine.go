package campaign

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"offergate/core/events"
	"offergate/merkle"
	"offergate/native/activity"
	nativecommon "offergate/native/common"
	"offergate/native/eligibility"
	"offergate/native/reward"
)

const moduleName = "campaign"

// feeState persists the accrued affiliate fees.
type feeState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedFees struct {
	Accrued *big.Int
}

// Engine is the per-campaign claim orchestrator: the single entry point for
// claims, coordinating eligibility resolution, discount resolution and
// delegation to the reward module. It holds direct references to its own
// activity and reward instances; later registry changes do not affect it.
type Engine struct {
	mu         sync.Mutex
	id         [32]byte
	owner      [20]byte
	affiliate  [20]byte
	controller [20]byte
	activity   activity.Module
	reward     reward.Module

	eligibility  EligibilityConfig
	fee          FeeConfig
	paused       bool
	discountRoot [32]byte
	hasRoot      bool

	verifier merkle.Verifier
	st       feeState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() uint64
}

// NewEngine wires an orchestrator to its activity and reward instances. The
// module references are immutable for the engine's lifetime.
func NewEngine(id [32]byte, owner, affiliate, controller [20]byte, act activity.Module, rew reward.Module, elig EligibilityConfig, fee FeeConfig, st feeState) (*Engine, error) {
	if act == nil || rew == nil {
		return nil, fmt.Errorf("%w: activity and reward modules required", ErrInvalidConfig)
	}
	if fee.AffiliateBps > FeeBpsDenominator {
		return nil, fmt.Errorf("%w: affiliate bps %d exceeds %d", ErrInvalidConfig, fee.AffiliateBps, FeeBpsDenominator)
	}
	if elig.Enabled && elig.RequireProofForAllClaims && elig.SigningKey == ([20]byte{}) {
		return nil, fmt.Errorf("%w: proof-required campaigns need a signing key", ErrInvalidConfig)
	}
	return &Engine{
		id:          id,
		owner:       owner,
		affiliate:   affiliate,
		controller:  controller,
		activity:    act,
		reward:      rew,
		eligibility: elig,
		fee:         fee,
		verifier:    merkle.SortedPairVerifier{},
		st:          st,
		emitter:     events.NoopEmitter{},
		nowFn:       func() uint64 { return uint64(time.Now().Unix()) },
	}, nil
}

// ID returns the campaign identifier.
func (e *Engine) ID() [32]byte { return e.id }

// Owner returns the campaign owner.
func (e *Engine) Owner() [20]byte { return e.owner }

// Controller returns the identity the reward module accepts claims from.
func (e *Engine) Controller() [20]byte { return e.controller }

// Activity returns the wired activity module.
func (e *Engine) Activity() activity.Module { return e.activity }

// Reward returns the wired reward module.
func (e *Engine) Reward() reward.Module { return e.reward }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMerkleVerifier overrides the discount proof verifier. Primarily for
// tests running against fixed trees. Passing nil restores the default.
func (e *Engine) SetMerkleVerifier(v merkle.Verifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v == nil {
		e.verifier = merkle.SortedPairVerifier{}
		return
	}
	e.verifier = v
}

// SetPauses installs the service-wide pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps. Passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// Claim is the single claim entry point. Eligibility is resolved first, then
// any discount, then the claim is delegated to the reward module, whose
// result is propagated unchanged.
func (e *Engine) Claim(user [20]byte, proofBytes []byte, discountRate uint64, merkleProof [][32]byte) (*reward.Receipt, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return nil, ErrPaused
	}
	now := e.nowFn()

	if e.eligibility.Enabled {
		if e.eligibility.RequireProofForAllClaims || len(proofBytes) > 0 {
			proof, err := eligibility.Decode(proofBytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotEligible, err)
			}
			if err := e.activity.VerifyProof(user, proof, now); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotEligible, err)
			}
		} else {
			ok, err := e.activity.CheckEligibility(user, now)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotEligible, err)
			}
			if !ok {
				return nil, fmt.Errorf("%w: criterion not met", ErrNotEligible)
			}
		}
	}

	if discountRate > 0 {
		if !e.hasRoot {
			return nil, fmt.Errorf("%w: no discount root configured", ErrDiscountProof)
		}
		leaf := merkle.DiscountLeaf(user, discountRate)
		if !e.verifier.Verify(leaf, merkleProof, e.discountRoot) {
			return nil, ErrDiscountProof
		}
	}

	receipt, err := e.reward.Claim(e.controller, user, now)
	if err != nil {
		return nil, err
	}
	e.accrueFee(receipt)
	e.emitter.Emit(events.CampaignClaimed{
		ID:           e.id,
		User:         user,
		DiscountRate: discountRate,
		TokenID:      receipt.TokenID,
		HasTokenID:   receipt.HasTokenID,
	})
	return receipt, nil
}

func (e *Engine) feeKey() []byte {
	return []byte("campaign/fees/" + hex.EncodeToString(e.id[:]))
}

// accrueFee books the affiliate share of a fungible payout. Accrual failures
// do not unwind the claim; the claim itself already committed.
func (e *Engine) accrueFee(receipt *reward.Receipt) {
	if e.st == nil || e.fee.AffiliateBps == 0 || receipt == nil || receipt.Amount == nil || receipt.Amount.Sign() <= 0 {
		return
	}
	share := new(big.Int).Mul(receipt.Amount, big.NewInt(int64(e.fee.AffiliateBps)))
	share.Quo(share, big.NewInt(FeeBpsDenominator))
	if share.Sign() <= 0 {
		return
	}
	fees := &storedFees{Accrued: big.NewInt(0)}
	if _, err := e.st.KVGet(e.feeKey(), fees); err != nil {
		return
	}
	if fees.Accrued == nil {
		fees.Accrued = big.NewInt(0)
	}
	fees.Accrued = new(big.Int).Add(fees.Accrued, share)
	_ = e.st.KVPut(e.feeKey(), fees)
}

// AccruedFees returns the affiliate fees booked so far.
func (e *Engine) AccruedFees() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fees := &storedFees{Accrued: big.NewInt(0)}
	if e.st == nil {
		return big.NewInt(0), nil
	}
	if _, err := e.st.KVGet(e.feeKey(), fees); err != nil {
		return nil, err
	}
	if fees.Accrued == nil {
		return big.NewInt(0), nil
	}
	return fees.Accrued, nil
}

// SetDiscountRoot replaces the committed discount Merkle root. Owner-only.
func (e *Engine) SetDiscountRoot(caller [20]byte, root [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	e.discountRoot = root
	e.hasRoot = root != ([32]byte{})
	e.emitter.Emit(events.DiscountRootUpdated{ID: e.id, Root: root})
	return nil
}

// SetEligibilityConfig replaces the eligibility configuration atomically and
// mirrors the proof scheme into the activity module. Owner-only.
func (e *Engine) SetEligibilityConfig(caller [20]byte, cfg EligibilityConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	if cfg.Enabled && cfg.RequireProofForAllClaims && cfg.SigningKey == ([20]byte{}) {
		return fmt.Errorf("%w: proof-required campaigns need a signing key", ErrInvalidConfig)
	}
	if err := e.activity.SetSigningKey(caller, cfg.SigningKey); err != nil {
		return err
	}
	if err := e.activity.SetProofValidity(caller, cfg.ProofValidity); err != nil {
		return err
	}
	e.eligibility = cfg
	e.emitter.Emit(events.EligibilityUpdated{
		ID:            e.id,
		Enabled:       cfg.Enabled,
		SigningKey:    cfg.SigningKey,
		ProofValidity: cfg.ProofValidity,
		RequireProof:  cfg.RequireProofForAllClaims,
	})
	return nil
}

// EligibilityConfig returns the current eligibility configuration.
func (e *Engine) EligibilityConfig() EligibilityConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eligibility
}

// SetFeeConfig replaces the fee policy atomically. Owner-only.
func (e *Engine) SetFeeConfig(caller [20]byte, cfg FeeConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	if cfg.AffiliateBps > FeeBpsDenominator {
		return fmt.Errorf("%w: affiliate bps %d exceeds %d", ErrInvalidConfig, cfg.AffiliateBps, FeeBpsDenominator)
	}
	e.fee = cfg
	return nil
}

// Pause halts the claim pipeline. Owner-only.
func (e *Engine) Pause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	e.paused = true
	e.emitter.Emit(events.CampaignPaused{ID: e.id})
	return nil
}

// Unpause resumes the claim pipeline. Owner-only.
func (e *Engine) Unpause(caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	e.paused = false
	e.emitter.Emit(events.CampaignResumed{ID: e.id})
	return nil
}

// Paused reports whether the claim pipeline is halted.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}
