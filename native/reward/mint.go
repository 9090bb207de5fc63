package reward

import (
	"encoding/hex"
	"fmt"
)

// NFTMint distributes one token from a collection per claim. Identifiers are
// auto-selected unless the owner assigned a specific one to the user.
type NFTMint struct {
	*Base
}

type storedAssignment struct {
	TokenID uint64
}

// NewNFTMint constructs the variant against a registered collection.
func NewNFTMint(campaignID [32]byte, owner, controller [20]byte, cfg Config, st claimState) (*NFTMint, error) {
	if st != nil && !st.CollectionExists(cfg.Asset) {
		return nil, fmt.Errorf("%w: collection %s not registered", ErrInvalidConfig, cfg.Asset)
	}
	base, err := newBase(campaignID, TypeNFTMint, owner, controller, cfg, st)
	if err != nil {
		return nil, err
	}
	m := &NFTMint{Base: base}
	base.distribute = m.mint
	return m, nil
}

func (m *NFTMint) assignmentKey(user [20]byte) []byte {
	return []byte("reward/assign/" + hex.EncodeToString(m.campaignID[:]) + "/" + hex.EncodeToString(user[:]))
}

// AssignTokenIDs records manual token allocations overriding auto-selection.
// Owner-only; assignments for users who already claimed are rejected.
func (m *NFTMint) AssignTokenIDs(caller [20]byte, assignments map[[20]byte]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if caller != m.owner {
		return ErrUnauthorized
	}
	for user, tokenID := range assignments {
		if tokenID == 0 {
			return fmt.Errorf("%w: token id must be non-zero", ErrInvalidConfig)
		}
		record, err := m.loadRecord(user)
		if err != nil {
			return err
		}
		if record.Claimed {
			return fmt.Errorf("%w: %s", ErrAlreadyClaimed, hex.EncodeToString(user[:]))
		}
		if err := m.st.KVPut(m.assignmentKey(user), &storedAssignment{TokenID: tokenID}); err != nil {
			return err
		}
	}
	return nil
}

func (m *NFTMint) mint(user [20]byte) (*Receipt, error) {
	assignment := new(storedAssignment)
	found, err := m.st.KVGet(m.assignmentKey(user), assignment)
	if err != nil {
		return nil, err
	}
	requested := uint64(0)
	if found {
		requested = assignment.TokenID
	}
	tokenID, err := m.st.MintToken(m.cfg.Asset, requested, user[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientFunding, err)
	}
	return &Receipt{Asset: m.cfg.Asset, TokenID: tokenID, HasTokenID: true}, nil
}
