package campaign

import (
	"errors"
	"math/big"
	"testing"

	"offergate/core/state"
	"offergate/native/activity"
	"offergate/native/eligibility"
	"offergate/native/registry"
	"offergate/native/reward"
	"offergate/storage"
)

var (
	factoryOwner = [20]byte{0x10}
	origin       = [20]byte{0x11}
	creator      = [20]byte{0x12}
	affiliate    = [20]byte{0x13}
	broker       = [20]byte{0x14}
)

func newTestFactory(t *testing.T) (*Factory, *state.Manager) {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	if err := st.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}

	reg := registry.NewRegistry(factoryOwner, st)
	holdTmpl := func(id [32]byte, owner [20]byte, cfg activity.Config, st *state.Manager, verifier *eligibility.Verifier) (activity.Module, error) {
		return activity.NewHoldThreshold(id, owner, cfg, st, verifier)
	}
	transferTmpl := func(id [32]byte, owner, controller [20]byte, cfg reward.Config, st *state.Manager) (reward.Module, error) {
		return reward.NewTokenTransfer(id, owner, controller, cfg, st)
	}
	if err := reg.RegisterActivity(factoryOwner, activity.TypeHoldThreshold, holdTmpl); err != nil {
		t.Fatalf("register activity: %v", err)
	}
	if err := reg.RegisterReward(factoryOwner, reward.TypeTokenTransfer, transferTmpl); err != nil {
		t.Fatalf("register reward: %v", err)
	}
	if err := reg.SetValidCombination(factoryOwner, activity.TypeHoldThreshold, reward.TypeTokenTransfer, true); err != nil {
		t.Fatalf("allow combination: %v", err)
	}

	f := NewFactory(factoryOwner, reg, st, nil)
	if err := f.AuthorizeOrigin(factoryOwner, origin, true); err != nil {
		t.Fatalf("authorize origin: %v", err)
	}
	f.SetNowFunc(func() uint64 { return 5000 })
	return f, st
}

func validParams() CreateParams {
	return CreateParams{
		ActivityType: activity.TypeHoldThreshold,
		ActivityConfig: activity.Config{
			Criteria: []activity.Criterion{{Asset: "USDC", Threshold: big.NewInt(100)}},
		},
		RewardType: reward.TypeTokenTransfer,
		RewardConfig: reward.Config{
			Name:           "drop",
			Asset:          "USDC",
			PerClaimAmount: big.NewInt(20),
			Broker:         broker,
		},
		Origin:    origin,
		Creator:   creator,
		Affiliate: affiliate,
	}
}

func TestCreateCampaign(t *testing.T) {
	f, st := newTestFactory(t)

	instance, err := f.CreateCampaign(validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if instance.Owner != creator || instance.Affiliate != affiliate {
		t.Fatalf("instance identity mismatch: %+v", instance)
	}
	if instance.Engine == nil || instance.Activity == nil || instance.Reward == nil {
		t.Fatalf("instance not fully wired")
	}
	if instance.CreatedAt != 5000 {
		t.Fatalf("created at %d, want 5000", instance.CreatedAt)
	}

	got, ok := f.Instance(instance.ID)
	if !ok || got != instance {
		t.Fatalf("instance not retrievable by id")
	}

	// The wired triad claims end to end.
	user := [20]byte{0xaa}
	if err := st.Credit(user[:], "USDC", big.NewInt(100)); err != nil {
		t.Fatalf("credit user: %v", err)
	}
	if err := st.Credit(broker[:], "USDC", big.NewInt(100)); err != nil {
		t.Fatalf("credit broker: %v", err)
	}
	if err := st.Approve(broker[:], instance.Engine.Controller(), "USDC", big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := instance.Engine.Claim(user, nil, 0, nil); err != nil {
		t.Fatalf("end-to-end claim: %v", err)
	}
}

func TestCreateCampaignUniqueIDs(t *testing.T) {
	f, _ := newTestFactory(t)

	first, err := f.CreateCampaign(validParams())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.CreateCampaign(validParams())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("identical params must still produce distinct campaign ids")
	}
	if len(f.Instances()) != 2 {
		t.Fatalf("instance count %d, want 2", len(f.Instances()))
	}
}

func TestCreateCampaignOriginGate(t *testing.T) {
	f, st := newTestFactory(t)

	p := validParams()
	p.Origin = [20]byte{0x99}
	if _, err := f.CreateCampaign(p); !errors.Is(err, ErrOriginNotAuthorized) {
		t.Fatalf("unknown origin: expected ErrOriginNotAuthorized, got %v", err)
	}

	// Role holders create without explicit whitelisting.
	if err := st.GrantRole(registry.RoleCampaignAdmin, p.Origin[:]); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if _, err := f.CreateCampaign(p); err != nil {
		t.Fatalf("role-held origin: %v", err)
	}

	// Revoked origins lose access.
	if err := f.AuthorizeOrigin(factoryOwner, origin, false); err != nil {
		t.Fatalf("revoke origin: %v", err)
	}
	if _, err := f.CreateCampaign(validParams()); !errors.Is(err, ErrOriginNotAuthorized) {
		t.Fatalf("revoked origin: expected ErrOriginNotAuthorized, got %v", err)
	}
}

func TestCreateCampaignInvalidCombination(t *testing.T) {
	f, _ := newTestFactory(t)

	p := validParams()
	p.RewardType = reward.TypeRaffle
	if _, err := f.CreateCampaign(p); !errors.Is(err, ErrInvalidCombination) {
		t.Fatalf("expected ErrInvalidCombination, got %v", err)
	}
	if len(f.Instances()) != 0 {
		t.Fatalf("failed creation must leave no instance reachable")
	}
}

func TestCreateCampaignUnknownTypes(t *testing.T) {
	_, st := newTestFactory(t)

	reg := registry.NewRegistry(factoryOwner, st)
	// Combination allowed but no templates registered.
	if err := reg.SetValidCombination(factoryOwner, "GHOST", reward.TypeTokenTransfer, true); err != nil {
		t.Fatalf("allow combination: %v", err)
	}
	f2 := NewFactory(factoryOwner, reg, st, nil)
	if err := f2.AuthorizeOrigin(factoryOwner, origin, true); err != nil {
		t.Fatalf("authorize origin: %v", err)
	}

	p := validParams()
	p.ActivityType = "GHOST"
	if _, err := f2.CreateCampaign(p); !errors.Is(err, ErrUnknownActivityType) {
		t.Fatalf("expected ErrUnknownActivityType, got %v", err)
	}
}

func TestCreateCampaignBuildFailureIsAtomic(t *testing.T) {
	f, _ := newTestFactory(t)

	p := validParams()
	p.RewardConfig.PerClaimAmount = big.NewInt(0)
	if _, err := f.CreateCampaign(p); err == nil {
		t.Fatalf("invalid reward config must fail creation")
	}
	if len(f.Instances()) != 0 {
		t.Fatalf("failed build must leave no instance reachable")
	}
}

func TestCreateCampaignPinnedTimestamp(t *testing.T) {
	params := validParams()
	params.CreatedAt = 1700000000

	f1, _ := newTestFactory(t)
	first, err := f1.CreateCampaign(params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.CreatedAt != 1700000000 {
		t.Fatalf("created at %d, want pinned 1700000000", first.CreatedAt)
	}

	// A second factory replaying the same definition derives the same identity.
	f2, _ := newTestFactory(t)
	second, err := f2.CreateCampaign(params)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replayed identity %x differs from %x", second.ID, first.ID)
	}
}
