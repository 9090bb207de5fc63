package reward

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"offergate/core/state"
)

// Airdrop distributes a fungible asset to an owner-curated eligibility list,
// normally in automatic mode via batch distribution after the distribution
// date.
type Airdrop struct {
	*Base
}

// NewAirdrop constructs the variant. Eligible users are added after creation
// via AddEligible or AddEligibleBatch.
func NewAirdrop(campaignID [32]byte, owner, controller [20]byte, cfg Config, st claimState) (*Airdrop, error) {
	if cfg.PerClaimAmount == nil || cfg.PerClaimAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: per-claim amount must be positive", ErrInvalidConfig)
	}
	if cfg.Broker == ([20]byte{}) {
		return nil, fmt.Errorf("%w: broker required", ErrInvalidConfig)
	}
	if st != nil && !st.TokenExists(cfg.Asset) {
		return nil, fmt.Errorf("%w: asset %s not registered", ErrInvalidConfig, cfg.Asset)
	}
	base, err := newBase(campaignID, TypeAirdrop, owner, controller, cfg, st)
	if err != nil {
		return nil, err
	}
	a := &Airdrop{Base: base}
	base.authorize = a.requireListed
	base.distribute = a.payOut
	return a, nil
}

func (a *Airdrop) eligibleKey() []byte {
	return []byte("reward/eligible/" + hex.EncodeToString(a.campaignID[:]))
}

// AddEligible appends a single user to the eligible list. Owner-only.
func (a *Airdrop) AddEligible(caller, user [20]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.owner {
		return ErrUnauthorized
	}
	return a.st.KVAppend(a.eligibleKey(), user[:])
}

// AddEligibleBatch appends a batch of users to the eligible list. Owner-only.
func (a *Airdrop) AddEligibleBatch(caller [20]byte, users [][20]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.owner {
		return ErrUnauthorized
	}
	for _, user := range users {
		if err := a.st.KVAppend(a.eligibleKey(), user[:]); err != nil {
			return err
		}
	}
	return nil
}

// Eligible returns the current eligibility list.
func (a *Airdrop) Eligible() ([][20]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var raw [][]byte
	if err := a.st.KVGetList(a.eligibleKey(), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, b := range raw {
		var addr [20]byte
		copy(addr[:], b)
		out = append(out, addr)
	}
	return out, nil
}

func (a *Airdrop) requireListed(user [20]byte) error {
	var raw [][]byte
	if err := a.st.KVGetList(a.eligibleKey(), &raw); err != nil {
		return err
	}
	for _, b := range raw {
		var addr [20]byte
		copy(addr[:], b)
		if addr == user {
			return nil
		}
	}
	return ErrNotListed
}

func (a *Airdrop) payOut(user [20]byte) (*Receipt, error) {
	amount := new(big.Int).Set(a.cfg.PerClaimAmount)
	err := a.st.SpendAllowance(a.cfg.Broker[:], a.controller, user[:], a.cfg.Asset, amount)
	if err != nil {
		if errors.Is(err, state.ErrInsufficientAllowance) || errors.Is(err, state.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunding, err)
		}
		return nil, err
	}
	return &Receipt{Asset: a.cfg.Asset, Amount: amount}, nil
}
