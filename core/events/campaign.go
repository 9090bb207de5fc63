package events

import (
	"encoding/hex"
	"math/big"

	"offergate/core/types"
	"offergate/crypto"
)

const (
	TypeCampaignCreated     = "campaign.created"
	TypeCampaignClaimed     = "campaign.claimed"
	TypeCampaignPaused      = "campaign.paused"
	TypeCampaignResumed     = "campaign.resumed"
	TypeDiscountRootUpdated = "campaign.discount_root_updated"
	TypeEligibilityUpdated  = "campaign.eligibility_updated"
	TypeActivityRecorded    = "campaign.activity_recorded"
	TypeRewardDistributed   = "campaign.reward_distributed"
	TypeBatchSettled        = "campaign.batch_settled"
)

// CampaignCreated is emitted by the factory once a triad has been wired and
// published.
type CampaignCreated struct {
	ID                 [32]byte
	Owner              [20]byte
	Affiliate          [20]byte
	ActivityType       string
	RewardType         string
	EligibilityEnabled bool
	SigningKey         [20]byte
	ProofValidity      uint64
}

func (CampaignCreated) EventType() string { return TypeCampaignCreated }

func (e CampaignCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeCampaignCreated,
		Attributes: map[string]string{
			"id":                 hex.EncodeToString(e.ID[:]),
			"owner":              crypto.NewAddress(crypto.OfferPrefix, e.Owner[:]).String(),
			"affiliate":          hex.EncodeToString(e.Affiliate[:]),
			"activityType":       e.ActivityType,
			"rewardType":         e.RewardType,
			"eligibilityEnabled": strconvBool(e.EligibilityEnabled),
			"signingKey":         hex.EncodeToString(e.SigningKey[:]),
			"proofValidity":      uintToString(e.ProofValidity),
		},
	}
}

// CampaignClaimed is emitted after a claim fully commits.
type CampaignClaimed struct {
	ID           [32]byte
	User         [20]byte
	DiscountRate uint64
	TokenID      uint64
	HasTokenID   bool
}

func (CampaignClaimed) EventType() string { return TypeCampaignClaimed }

func (e CampaignClaimed) Event() *types.Event {
	attrs := map[string]string{
		"id":           hex.EncodeToString(e.ID[:]),
		"user":         crypto.NewAddress(crypto.OfferPrefix, e.User[:]).String(),
		"discountRate": uintToString(e.DiscountRate),
	}
	if e.HasTokenID {
		attrs["tokenId"] = uintToString(e.TokenID)
	}
	return &types.Event{Type: TypeCampaignClaimed, Attributes: attrs}
}

// CampaignPaused is emitted when the owner pauses the claim pipeline.
type CampaignPaused struct {
	ID [32]byte
}

func (CampaignPaused) EventType() string { return TypeCampaignPaused }

func (e CampaignPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeCampaignPaused,
		Attributes: map[string]string{"id": hex.EncodeToString(e.ID[:])},
	}
}

// CampaignResumed is emitted when the owner unpauses the claim pipeline.
type CampaignResumed struct {
	ID [32]byte
}

func (CampaignResumed) EventType() string { return TypeCampaignResumed }

func (e CampaignResumed) Event() *types.Event {
	return &types.Event{
		Type:       TypeCampaignResumed,
		Attributes: map[string]string{"id": hex.EncodeToString(e.ID[:])},
	}
}

// DiscountRootUpdated is emitted when the discount Merkle root is replaced.
type DiscountRootUpdated struct {
	ID   [32]byte
	Root [32]byte
}

func (DiscountRootUpdated) EventType() string { return TypeDiscountRootUpdated }

func (e DiscountRootUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeDiscountRootUpdated,
		Attributes: map[string]string{
			"id":   hex.EncodeToString(e.ID[:]),
			"root": hex.EncodeToString(e.Root[:]),
		},
	}
}

// EligibilityUpdated is emitted when the owner replaces the eligibility
// configuration.
type EligibilityUpdated struct {
	ID            [32]byte
	Enabled       bool
	SigningKey    [20]byte
	ProofValidity uint64
	RequireProof  bool
}

func (EligibilityUpdated) EventType() string { return TypeEligibilityUpdated }

func (e EligibilityUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeEligibilityUpdated,
		Attributes: map[string]string{
			"id":            hex.EncodeToString(e.ID[:]),
			"enabled":       strconvBool(e.Enabled),
			"signingKey":    hex.EncodeToString(e.SigningKey[:]),
			"proofValidity": uintToString(e.ProofValidity),
			"requireProof":  strconvBool(e.RequireProof),
		},
	}
}

// ActivityRecorded is emitted by the privileged ingestion path after a
// purchase or transfer has been recorded against a user's criterion state.
type ActivityRecorded struct {
	ID     [32]byte
	User   [20]byte
	Amount *big.Int
	Total  *big.Int
	Count  uint64
}

func (ActivityRecorded) EventType() string { return TypeActivityRecorded }

func (e ActivityRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeActivityRecorded,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"user":   crypto.NewAddress(crypto.OfferPrefix, e.User[:]).String(),
			"amount": formatAmount(e.Amount),
			"total":  formatAmount(e.Total),
			"count":  uintToString(e.Count),
		},
	}
}

// RewardDistributed is emitted by a reward module when the asset movement for
// a single user commits.
type RewardDistributed struct {
	ID         [32]byte
	User       [20]byte
	Asset      string
	Amount     *big.Int
	TokenID    uint64
	HasTokenID bool
}

func (RewardDistributed) EventType() string { return TypeRewardDistributed }

func (e RewardDistributed) Event() *types.Event {
	attrs := map[string]string{
		"id":     hex.EncodeToString(e.ID[:]),
		"user":   crypto.NewAddress(crypto.OfferPrefix, e.User[:]).String(),
		"asset":  e.Asset,
		"amount": formatAmount(e.Amount),
	}
	if e.HasTokenID {
		attrs["tokenId"] = uintToString(e.TokenID)
	}
	return &types.Event{Type: TypeRewardDistributed, Attributes: attrs}
}

// BatchSettled is emitted once an automatic distribution batch finishes.
type BatchSettled struct {
	ID        [32]byte
	Requested int
	Settled   int
	Skipped   int
}

func (BatchSettled) EventType() string { return TypeBatchSettled }

func (e BatchSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeBatchSettled,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"requested": intToString(int64(e.Requested)),
			"settled":   intToString(int64(e.Settled)),
			"skipped":   intToString(int64(e.Skipped)),
		},
	}
}

func strconvBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
