package activity

import (
	"fmt"
	"math/big"

	"offergate/native/eligibility"
)

// HoldThreshold is the activity variant gating on live balances: a user is
// eligible while they hold at least the threshold amount of every configured
// asset inside the campaign window.
type HoldThreshold struct {
	*Base
	ledger ledgerState
}

// NewHoldThreshold constructs the variant against the provided ledger.
func NewHoldThreshold(campaignID [32]byte, owner [20]byte, cfg Config, ledger ledgerState, verifier *eligibility.Verifier) (*HoldThreshold, error) {
	if ledger == nil {
		return nil, ErrNilState
	}
	if len(cfg.Criteria) == 0 {
		return nil, fmt.Errorf("%w: hold campaigns need at least one criterion", ErrInvalidConfig)
	}
	base, err := newBase(campaignID, TypeHoldThreshold, owner, cfg, verifier)
	if err != nil {
		return nil, err
	}
	return &HoldThreshold{Base: base, ledger: ledger}, nil
}

// CheckEligibility reads the user's current balances and compares them to the
// configured thresholds. Side-effect free.
func (h *HoldThreshold) CheckEligibility(user [20]byte, now uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.withinWindow(now) {
		return false, nil
	}
	account, err := h.ledger.GetAccount(user[:])
	if err != nil {
		return false, err
	}
	for _, crit := range h.cfg.Criteria {
		threshold := crit.Threshold
		if threshold == nil {
			threshold = big.NewInt(0)
		}
		if account.Balance(crit.Asset).Cmp(threshold) < 0 {
			return false, nil
		}
	}
	return true, nil
}

// RecordActivity is a no-op for hold campaigns beyond authorization: holdings
// are read live, so there is no accumulated state to update. The call still
// validates the caller so misdirected ingestion fails loudly.
func (h *HoldThreshold) RecordActivity(caller, user [20]byte, amount *big.Int, proof *eligibility.Proof, now uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authorizeIngestionLocked(caller, user, proof, now)
}
