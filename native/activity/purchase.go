package activity

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"offergate/native/eligibility"
)

// PurchaseThreshold is the activity variant gating on accumulated recorded
// purchases. Off-system purchase events enter through RecordActivity and the
// running total and count are compared against the configured thresholds.
type PurchaseThreshold struct {
	*Base
	st recordState
}

type storedTally struct {
	Total *big.Int
	Count uint64
}

// NewPurchaseThreshold constructs the variant against the provided record
// store.
func NewPurchaseThreshold(campaignID [32]byte, owner [20]byte, cfg Config, st recordState, verifier *eligibility.Verifier) (*PurchaseThreshold, error) {
	if st == nil {
		return nil, ErrNilState
	}
	if len(cfg.Criteria) == 0 && cfg.MinPurchaseCount == 0 {
		return nil, fmt.Errorf("%w: purchase campaigns need a threshold or a count", ErrInvalidConfig)
	}
	if len(cfg.Criteria) > 1 {
		return nil, fmt.Errorf("%w: purchase campaigns track a single asset", ErrInvalidConfig)
	}
	base, err := newBase(campaignID, TypePurchaseThreshold, owner, cfg, verifier)
	if err != nil {
		return nil, err
	}
	return &PurchaseThreshold{Base: base, st: st}, nil
}

func (p *PurchaseThreshold) tallyKey(user [20]byte) []byte {
	return []byte("activity/purchase/" + hex.EncodeToString(p.campaignID[:]) + "/" + hex.EncodeToString(user[:]))
}

func (p *PurchaseThreshold) loadTally(user [20]byte) (*storedTally, error) {
	tally := &storedTally{Total: big.NewInt(0)}
	found, err := p.st.KVGet(p.tallyKey(user), tally)
	if err != nil {
		return nil, err
	}
	if !found {
		return &storedTally{Total: big.NewInt(0)}, nil
	}
	if tally.Total == nil {
		tally.Total = big.NewInt(0)
	}
	return tally, nil
}

// Tally returns the user's accumulated purchase state.
func (p *PurchaseThreshold) Tally(user [20]byte) (CriterionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tally, err := p.loadTally(user)
	if err != nil {
		return CriterionState{}, err
	}
	return CriterionState{Total: new(big.Int).Set(tally.Total), Count: tally.Count}, nil
}

// CheckEligibility compares the recorded running total and purchase count
// against the configured thresholds. Side-effect free.
func (p *PurchaseThreshold) CheckEligibility(user [20]byte, now uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.withinWindow(now) {
		return false, nil
	}
	tally, err := p.loadTally(user)
	if err != nil {
		return false, err
	}
	if len(p.cfg.Criteria) > 0 {
		threshold := p.cfg.Criteria[0].Threshold
		if threshold == nil {
			threshold = big.NewInt(0)
		}
		if tally.Total.Cmp(threshold) < 0 {
			return false, nil
		}
	}
	if p.cfg.MinPurchaseCount > 0 && tally.Count < p.cfg.MinPurchaseCount {
		return false, nil
	}
	return true, nil
}

// RecordActivity increments the user's running purchase total. Callable by
// the owner directly or by any caller presenting a valid eligibility proof.
// The instance lock spans the tally read-modify-write, so concurrent
// ingestion never loses an update.
func (p *PurchaseThreshold) RecordActivity(caller, user [20]byte, amount *big.Int, proof *eligibility.Proof, now uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.authorizeIngestionLocked(caller, user, proof, now); err != nil {
		return err
	}
	tally, err := p.loadTally(user)
	if err != nil {
		return err
	}
	tally.Total = new(big.Int).Add(tally.Total, amount)
	tally.Count++
	if err := p.st.KVPut(p.tallyKey(user), tally); err != nil {
		return err
	}
	p.emitRecorded(user, amount, tally.Total, tally.Count)
	return nil
}
