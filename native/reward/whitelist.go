package reward

import (
	"encoding/hex"
	"fmt"
)

// WhitelistSpot grants a registration slot instead of moving assets: a
// successful claim appends the user to the campaign's whitelist. ExpectedCount
// caps the number of spots when non-zero.
type WhitelistSpot struct {
	*Base
}

// NewWhitelistSpot constructs the variant.
func NewWhitelistSpot(campaignID [32]byte, owner, controller [20]byte, cfg Config, st claimState) (*WhitelistSpot, error) {
	base, err := newBase(campaignID, TypeWhitelist, owner, controller, cfg, st)
	if err != nil {
		return nil, err
	}
	w := &WhitelistSpot{Base: base}
	base.authorize = w.requireCapacity
	base.distribute = w.grantSpot
	return w, nil
}

func (w *WhitelistSpot) listKey() []byte {
	return []byte("reward/whitelist/" + hex.EncodeToString(w.campaignID[:]))
}

func (w *WhitelistSpot) requireCapacity(user [20]byte) error {
	if w.cfg.ExpectedCount == 0 {
		return nil
	}
	stats, err := w.loadStats()
	if err != nil {
		return err
	}
	if stats.Claimed >= w.cfg.ExpectedCount {
		return fmt.Errorf("%w: all %d spots taken", ErrInsufficientFunding, w.cfg.ExpectedCount)
	}
	return nil
}

func (w *WhitelistSpot) grantSpot(user [20]byte) (*Receipt, error) {
	if err := w.st.KVAppend(w.listKey(), user[:]); err != nil {
		return nil, err
	}
	return &Receipt{}, nil
}

// IsWhitelisted reports whether the user holds a spot.
func (w *WhitelistSpot) IsWhitelisted(user [20]byte) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var raw [][]byte
	if err := w.st.KVGetList(w.listKey(), &raw); err != nil {
		return false, err
	}
	for _, b := range raw {
		var addr [20]byte
		copy(addr[:], b)
		if addr == user {
			return true, nil
		}
	}
	return false, nil
}
