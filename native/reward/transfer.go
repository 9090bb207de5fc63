package reward

import (
	"errors"
	"fmt"
	"math/big"

	"offergate/core/state"
)

// TokenTransfer distributes a fixed amount of a fungible asset per claim,
// pulled from the broker's pre-approved allowance. The allowance is granted
// to the campaign's controller identity.
type TokenTransfer struct {
	*Base
}

// NewTokenTransfer constructs the variant. The broker must have approved the
// controller for at least the expected total before claims start; individual
// claims fail with a funding error once the allowance runs dry.
func NewTokenTransfer(campaignID [32]byte, owner, controller [20]byte, cfg Config, st claimState) (*TokenTransfer, error) {
	if cfg.PerClaimAmount == nil || cfg.PerClaimAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: per-claim amount must be positive", ErrInvalidConfig)
	}
	if cfg.Broker == ([20]byte{}) {
		return nil, fmt.Errorf("%w: broker required", ErrInvalidConfig)
	}
	if st != nil && !st.TokenExists(cfg.Asset) {
		return nil, fmt.Errorf("%w: asset %s not registered", ErrInvalidConfig, cfg.Asset)
	}
	base, err := newBase(campaignID, TypeTokenTransfer, owner, controller, cfg, st)
	if err != nil {
		return nil, err
	}
	t := &TokenTransfer{Base: base}
	base.distribute = t.payOut
	return t, nil
}

func (t *TokenTransfer) payOut(user [20]byte) (*Receipt, error) {
	amount := new(big.Int).Set(t.cfg.PerClaimAmount)
	err := t.st.SpendAllowance(t.cfg.Broker[:], t.controller, user[:], t.cfg.Asset, amount)
	if err != nil {
		if errors.Is(err, state.ErrInsufficientAllowance) || errors.Is(err, state.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunding, err)
		}
		return nil, err
	}
	return &Receipt{Asset: t.cfg.Asset, Amount: amount}, nil
}
