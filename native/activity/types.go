package activity

import "math/big"

// Type tags registered with the campaign registry. The tag is also mixed into
// the eligibility-proof digest so a proof issued for one activity family can
// not be replayed against another.
const (
	TypeHoldThreshold     = "HOLD_THRESHOLD"
	TypePurchaseThreshold = "PURCHASE_THRESHOLD"
)

// ListingStatus mirrors the asset listing state a campaign may require.
type ListingStatus uint8

const (
	ListingAny ListingStatus = iota
	ListingListed
	ListingDelisted
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingAny, ListingListed, ListingDelisted:
		return true
	default:
		return false
	}
}

func (s ListingStatus) String() string {
	switch s {
	case ListingAny:
		return "any"
	case ListingListed:
		return "listed"
	case ListingDelisted:
		return "delisted"
	default:
		return "unknown"
	}
}

// Criterion pairs an asset with the threshold a user must reach.
type Criterion struct {
	Asset     string
	Threshold *big.Int
}

// Config is the persisted activity configuration supplied at campaign
// creation.
type Config struct {
	Criteria      []Criterion
	WindowStart   uint64
	WindowEnd     uint64
	SnapshotTime  uint64
	ListingStatus ListingStatus
	// MinPurchaseCount applies to purchase-threshold campaigns only; zero
	// disables the count criterion.
	MinPurchaseCount uint64
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	if len(c.Criteria) > 0 {
		out.Criteria = make([]Criterion, len(c.Criteria))
		for i, crit := range c.Criteria {
			out.Criteria[i] = Criterion{Asset: crit.Asset}
			if crit.Threshold != nil {
				out.Criteria[i].Threshold = new(big.Int).Set(crit.Threshold)
			} else {
				out.Criteria[i].Threshold = big.NewInt(0)
			}
		}
	}
	return out
}

// CriterionState is the accumulated recorded activity for one (campaign,
// user) pair, mutated only through the privileged ingestion path.
type CriterionState struct {
	Total *big.Int
	Count uint64
}
