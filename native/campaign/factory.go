package campaign

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"offergate/core/events"
	"offergate/core/state"
	"offergate/native/activity"
	"offergate/native/eligibility"
	"offergate/native/registry"
	"offergate/native/reward"
)

// Instance is one deployed (orchestrator, activity, reward) triad
// implementing a single gated offer. The module references are set once at
// creation.
type Instance struct {
	ID           [32]byte
	ActivityType string
	RewardType   string
	Owner        [20]byte
	Affiliate    [20]byte
	Engine       *Engine
	Activity     activity.Module
	Reward       reward.Module
	CreatedAt    uint64
}

// CreateParams carries everything the factory needs for one campaign.
type CreateParams struct {
	ActivityType   string
	ActivityConfig activity.Config
	RewardType     string
	RewardConfig   reward.Config
	Eligibility    EligibilityConfig
	Fee            FeeConfig
	Origin         [20]byte
	Creator        [20]byte
	Affiliate      [20]byte
	// CreatedAt pins the creation timestamp so identity stays stable when a
	// campaign is re-provisioned from configuration. Zero uses the clock.
	CreatedAt uint64
}

// Factory validates an origin's authorization and the registry's pairing
// rule, then instantiates a fresh triad from the registered templates and
// wires it together. Creation is atomic: any failure leaves no instance
// reachable.
type Factory struct {
	mu        sync.Mutex
	owner     [20]byte
	registry  *registry.Registry
	st        *state.Manager
	verifier  *eligibility.Verifier
	emitter   events.Emitter
	origins   map[[20]byte]bool
	instances map[[32]byte]*Instance
	counter   uint64
	nowFn     func() uint64
}

// NewFactory creates a factory backed by the given registry and state
// manager. The eligibility verifier is shared by all activity instances; nil
// selects the production secp256k1 recovery.
func NewFactory(owner [20]byte, reg *registry.Registry, st *state.Manager, verifier *eligibility.Verifier) *Factory {
	if verifier == nil {
		verifier = eligibility.NewVerifier(nil)
	}
	return &Factory{
		owner:     owner,
		registry:  reg,
		st:        st,
		verifier:  verifier,
		emitter:   events.NoopEmitter{},
		origins:   make(map[[20]byte]bool),
		instances: make(map[[32]byte]*Instance),
		nowFn:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter propagated to created instances.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for tests.
func (f *Factory) SetNowFunc(now func() uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if now == nil {
		f.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	f.nowFn = now
}

// AuthorizeOrigin whitelists or revokes an origin for campaign creation.
// Factory-owner only.
func (f *Factory) AuthorizeOrigin(caller, origin [20]byte, allowed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return ErrUnauthorized
	}
	if allowed {
		f.origins[origin] = true
	} else {
		delete(f.origins, origin)
	}
	return nil
}

func (f *Factory) campaignID(p *CreateParams, nonce uint64, now uint64) [32]byte {
	buf := make([]byte, 0, 20+len(p.ActivityType)+len(p.RewardType)+16)
	buf = append(buf, p.Creator[:]...)
	buf = append(buf, p.ActivityType...)
	buf = append(buf, p.RewardType...)
	var scratch [16]byte
	binary.BigEndian.PutUint64(scratch[:8], nonce)
	binary.BigEndian.PutUint64(scratch[8:], now)
	buf = append(buf, scratch[:]...)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(buf))
	return id
}

// controllerFor derives the controller identity the reward module is bound
// to: the last 20 bytes of keccak256("controller" ‖ id).
func controllerFor(id [32]byte) [20]byte {
	digest := ethcrypto.Keccak256(append([]byte("controller"), id[:]...))
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

// CreateCampaign builds, wires and publishes a campaign instance.
func (f *Factory) CreateCampaign(p CreateParams) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.origins[p.Origin] && !f.st.HasRole(registry.RoleCampaignAdmin, p.Origin[:]) {
		return nil, ErrOriginNotAuthorized
	}
	if !f.registry.IsValidCombination(p.ActivityType, p.RewardType) {
		return nil, fmt.Errorf("%w: %s + %s", ErrInvalidCombination, p.ActivityType, p.RewardType)
	}
	activityTmpl := f.registry.ActivityImplementation(p.ActivityType)
	if activityTmpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivityType, p.ActivityType)
	}
	rewardTmpl := f.registry.RewardImplementation(p.RewardType)
	if rewardTmpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRewardType, p.RewardType)
	}

	now := p.CreatedAt
	if now == 0 {
		now = f.nowFn()
	}
	id := f.campaignID(&p, f.counter, now)
	controller := controllerFor(id)

	act, err := activityTmpl(id, p.Creator, p.ActivityConfig, f.st, f.verifier)
	if err != nil {
		return nil, fmt.Errorf("build activity: %w", err)
	}
	if err := act.SetSigningKey(p.Creator, p.Eligibility.SigningKey); err != nil {
		return nil, fmt.Errorf("seed signing key: %w", err)
	}
	if err := act.SetProofValidity(p.Creator, p.Eligibility.ProofValidity); err != nil {
		return nil, fmt.Errorf("seed proof validity: %w", err)
	}

	rew, err := rewardTmpl(id, p.Creator, controller, p.RewardConfig, f.st)
	if err != nil {
		return nil, fmt.Errorf("build reward: %w", err)
	}

	engine, err := NewEngine(id, p.Creator, p.Affiliate, controller, act, rew, p.Eligibility, p.Fee, f.st)
	if err != nil {
		return nil, err
	}
	engine.SetEmitter(f.emitter)
	engine.SetNowFunc(f.nowFn)
	if setter, ok := act.(interface{ SetEmitter(events.Emitter) }); ok {
		setter.SetEmitter(f.emitter)
	}
	if setter, ok := rew.(interface{ SetEmitter(events.Emitter) }); ok {
		setter.SetEmitter(f.emitter)
	}

	instance := &Instance{
		ID:           id,
		ActivityType: p.ActivityType,
		RewardType:   p.RewardType,
		Owner:        p.Creator,
		Affiliate:    p.Affiliate,
		Engine:       engine,
		Activity:     act,
		Reward:       rew,
		CreatedAt:    now,
	}
	f.counter++
	f.instances[id] = instance
	f.emitter.Emit(events.CampaignCreated{
		ID:                 id,
		Owner:              p.Creator,
		Affiliate:          p.Affiliate,
		ActivityType:       act.Type(),
		RewardType:         rew.Type(),
		EligibilityEnabled: p.Eligibility.Enabled,
		SigningKey:         p.Eligibility.SigningKey,
		ProofValidity:      p.Eligibility.ProofValidity,
	})
	return instance, nil
}

// Instance returns the campaign with the given identifier.
func (f *Factory) Instance(id [32]byte) (*Instance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	instance, ok := f.instances[id]
	return instance, ok
}

// Instances returns all deployed campaigns.
func (f *Factory) Instances() []*Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Instance, 0, len(f.instances))
	for _, instance := range f.instances {
		out = append(out, instance)
	}
	return out
}
