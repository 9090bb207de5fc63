package reward

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"offergate/core/state"
)

// Raffle distributes a fungible prize to users on an owner-curated winner
// list. Anyone else passing the orchestrator's eligibility checks is still
// rejected here.
type Raffle struct {
	*Base
}

// NewRaffle constructs the variant. Winners are added after creation via
// AddWinner or SetWinners.
func NewRaffle(campaignID [32]byte, owner, controller [20]byte, cfg Config, st claimState) (*Raffle, error) {
	if cfg.PerClaimAmount == nil || cfg.PerClaimAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: prize amount must be positive", ErrInvalidConfig)
	}
	if cfg.Broker == ([20]byte{}) {
		return nil, fmt.Errorf("%w: broker required", ErrInvalidConfig)
	}
	if st != nil && !st.TokenExists(cfg.Asset) {
		return nil, fmt.Errorf("%w: asset %s not registered", ErrInvalidConfig, cfg.Asset)
	}
	base, err := newBase(campaignID, TypeRaffle, owner, controller, cfg, st)
	if err != nil {
		return nil, err
	}
	r := &Raffle{Base: base}
	base.authorize = r.requireWinner
	base.distribute = r.payPrize
	return r, nil
}

func (r *Raffle) winnersKey() []byte {
	return []byte("reward/winners/" + hex.EncodeToString(r.campaignID[:]))
}

// AddWinner appends a single winner. Owner-only.
func (r *Raffle) AddWinner(caller, winner [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	return r.st.KVAppend(r.winnersKey(), winner[:])
}

// SetWinners appends the drawn winner set. Owner-only. Winners already on the
// list are kept once.
func (r *Raffle) SetWinners(caller [20]byte, winners [][20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return ErrUnauthorized
	}
	for _, winner := range winners {
		if err := r.st.KVAppend(r.winnersKey(), winner[:]); err != nil {
			return err
		}
	}
	return nil
}

// Winners returns the current winner list.
func (r *Raffle) Winners() ([][20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winnerList()
}

func (r *Raffle) winnerList() ([][20]byte, error) {
	var raw [][]byte
	if err := r.st.KVGetList(r.winnersKey(), &raw); err != nil {
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

func (r *Raffle) requireWinner(user [20]byte) error {
	winners, err := r.winnerList()
	if err != nil {
		return err
	}
	for _, winner := range winners {
		if winner == user {
			return nil
		}
	}
	return ErrNotWinner
}

func (r *Raffle) payPrize(user [20]byte) (*Receipt, error) {
	amount := new(big.Int).Set(r.cfg.PerClaimAmount)
	err := r.st.SpendAllowance(r.cfg.Broker[:], r.controller, user[:], r.cfg.Asset, amount)
	if err != nil {
		if errors.Is(err, state.ErrInsufficientAllowance) || errors.Is(err, state.ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunding, err)
		}
		return nil, err
	}
	return &Receipt{Asset: r.cfg.Asset, Amount: amount}, nil
}
