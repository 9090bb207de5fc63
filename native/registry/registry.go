// Package registry maps activity and reward type identifiers to
// implementation templates and records which type pairs may be combined into
// a campaign. The registry is an explicit owned store handed to the factory,
// created once at bootstrap and mutated only through admin operations.
package registry

import (
	"strings"
	"sync"

	"offergate/core/state"
	"offergate/native/activity"
	"offergate/native/eligibility"
	"offergate/native/reward"
)

const (
	// RoleCampaignAdmin may mutate the registry and create campaigns on
	// behalf of any owner.
	RoleCampaignAdmin = "ROLE_CAMPAIGN_ADMIN"
)

// ActivityTemplate constructs a fresh activity instance for a campaign.
// Template selection is pure data; each invocation is an independent, cheap
// construction.
type ActivityTemplate func(campaignID [32]byte, owner [20]byte, cfg activity.Config, st *state.Manager, verifier *eligibility.Verifier) (activity.Module, error)

// RewardTemplate constructs a fresh reward instance bound to a controller.
type RewardTemplate func(campaignID [32]byte, owner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error)

type roleState interface {
	HasRole(role string, addr []byte) bool
}

// Registry is the template and combination store consulted by the factory on
// every campaign creation.
type Registry struct {
	mu           sync.RWMutex
	owner        [20]byte
	st           roleState
	activities   map[string]ActivityTemplate
	rewards      map[string]RewardTemplate
	combinations map[[2]string]bool
}

// NewRegistry creates an empty registry owned by the given address. Role
// checks run against the provided state.
func NewRegistry(owner [20]byte, st roleState) *Registry {
	return &Registry{
		owner:        owner,
		st:           st,
		activities:   make(map[string]ActivityTemplate),
		rewards:      make(map[string]RewardTemplate),
		combinations: make(map[[2]string]bool),
	}
}

func (r *Registry) authorized(caller [20]byte) bool {
	if caller == r.owner {
		return true
	}
	return r.st != nil && r.st.HasRole(RoleCampaignAdmin, caller[:])
}

func normalizeType(typ string) string {
	return strings.ToUpper(strings.TrimSpace(typ))
}

// RegisterActivity records the template for an activity type. Owner-restricted.
func (r *Registry) RegisterActivity(caller [20]byte, typ string, tmpl ActivityTemplate) error {
	normalized := normalizeType(typ)
	if normalized == "" {
		return ErrEmptyType
	}
	if tmpl == nil {
		return ErrNilTemplate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authorized(caller) {
		return ErrUnauthorized
	}
	r.activities[normalized] = tmpl
	return nil
}

// RegisterReward records the template for a reward type. Owner-restricted.
func (r *Registry) RegisterReward(caller [20]byte, typ string, tmpl RewardTemplate) error {
	normalized := normalizeType(typ)
	if normalized == "" {
		return ErrEmptyType
	}
	if tmpl == nil {
		return ErrNilTemplate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authorized(caller) {
		return ErrUnauthorized
	}
	r.rewards[normalized] = tmpl
	return nil
}

// SetValidCombination records whether the activity/reward pair may be
// composed. Owner-restricted. Disabling a combination has no effect on
// campaigns already created from it; instances keep direct references to
// their own modules.
func (r *Registry) SetValidCombination(caller [20]byte, activityType, rewardType string, allowed bool) error {
	a, w := normalizeType(activityType), normalizeType(rewardType)
	if a == "" || w == "" {
		return ErrEmptyType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.authorized(caller) {
		return ErrUnauthorized
	}
	r.combinations[[2]string{a, w}] = allowed
	return nil
}

// ActivityImplementation returns the template registered for the type. A nil
// template signals an unknown type; callers must check before use.
func (r *Registry) ActivityImplementation(typ string) ActivityTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activities[normalizeType(typ)]
}

// RewardImplementation returns the template registered for the type. A nil
// template signals an unknown type; callers must check before use.
func (r *Registry) RewardImplementation(typ string) RewardTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rewards[normalizeType(typ)]
}

// IsValidCombination reports whether the pair may be composed. Unknown pairs
// are not valid.
func (r *Registry) IsValidCombination(activityType, rewardType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.combinations[[2]string{normalizeType(activityType), normalizeType(rewardType)}]
}
