package reward

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"offergate/core/state"
	"offergate/storage"
)

var (
	testCampaignID = [32]byte{0x0f, 0xfe}
	testOwner      = [20]byte{0x01}
	testController = [20]byte{0x02}
	testBroker     = [20]byte{0x03}
	testUser       = [20]byte{0xaa}
)

func userN(n byte) [20]byte {
	var out [20]byte
	out[0] = 0xf0
	out[19] = n
	return out
}

func newTestState(t *testing.T) *state.Manager {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	if err := st.RegisterToken("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := st.RegisterCollection("PASS", "Season Pass"); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	return st
}

func fundBroker(t *testing.T, st *state.Manager, amount int64) {
	t.Helper()
	if err := st.Credit(testBroker[:], "USDC", big.NewInt(amount)); err != nil {
		t.Fatalf("credit broker: %v", err)
	}
	if err := st.Approve(testBroker[:], testController, "USDC", big.NewInt(amount)); err != nil {
		t.Fatalf("approve controller: %v", err)
	}
}

func transferConfig(perClaim int64) Config {
	return Config{
		Name:           "launch drop",
		Asset:          "USDC",
		PerClaimAmount: big.NewInt(perClaim),
		Broker:         testBroker,
	}
}

func newTransfer(t *testing.T, st *state.Manager, cfg Config) *TokenTransfer {
	t.Helper()
	mod, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct transfer: %v", err)
	}
	return mod
}

func TestTokenTransferClaim(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	mod := newTransfer(t, st, transferConfig(20))

	receipt, err := mod.Claim(testController, testUser, 100)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if receipt.Asset != "USDC" || receipt.Amount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("receipt %+v, want 20 USDC", receipt)
	}

	acc, _ := st.GetAccount(testUser[:])
	if acc.Balance("USDC").Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("user balance %s, want 20", acc.Balance("USDC"))
	}

	stats, err := mod.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Claimed != 1 {
		t.Fatalf("claimed count %d, want 1", stats.Claimed)
	}
}

func TestClaimOnce(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	mod := newTransfer(t, st, transferConfig(20))

	if _, err := mod.Claim(testController, testUser, 100); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := mod.Claim(testController, testUser, 101); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}

	// Balance must not move twice.
	acc, _ := st.GetAccount(testUser[:])
	if acc.Balance("USDC").Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("user balance %s after duplicate claim, want 20", acc.Balance("USDC"))
	}
}

func TestClaimControllerFailClosed(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	mod := newTransfer(t, st, transferConfig(20))

	if _, err := mod.Claim(testOwner, testUser, 100); !errors.Is(err, ErrNotController) {
		t.Fatalf("owner direct claim: expected ErrNotController, got %v", err)
	}
	if _, err := mod.Claim(testUser, testUser, 100); !errors.Is(err, ErrNotController) {
		t.Fatalf("user direct claim: expected ErrNotController, got %v", err)
	}
}

func TestFundingExhaustion(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	mod := newTransfer(t, st, transferConfig(20))

	for i := 0; i < 50; i++ {
		if _, err := mod.Claim(testController, userN(byte(i)), 100); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}

	// The 51st claim exceeds the 1000 allowance.
	late := userN(50)
	if _, err := mod.Claim(testController, late, 100); !errors.Is(err, ErrInsufficientFunding) {
		t.Fatalf("expected ErrInsufficientFunding, got %v", err)
	}

	// The failed claim must not be recorded, so a refunded campaign can
	// serve the same user later.
	if err := st.Credit(testBroker[:], "USDC", big.NewInt(20)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := st.Approve(testBroker[:], testController, "USDC", big.NewInt(20)); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if _, err := mod.Claim(testController, late, 100); err != nil {
		t.Fatalf("claim after refund: %v", err)
	}

	stats, _ := mod.Stats()
	if stats.Claimed != 51 {
		t.Fatalf("claimed count %d, want 51", stats.Claimed)
	}
}

func TestClaimWindowAndActive(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(20)
	cfg.WindowStart = 100
	cfg.WindowEnd = 200
	mod := newTransfer(t, st, cfg)

	if _, err := mod.Claim(testController, testUser, 99); !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("before window: expected ErrOutsideWindow, got %v", err)
	}
	if _, err := mod.Claim(testController, testUser, 201); !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("after window: expected ErrOutsideWindow, got %v", err)
	}

	if err := mod.SetActive(testOwner, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := mod.Claim(testController, testUser, 150); !errors.Is(err, ErrInactive) {
		t.Fatalf("inactive: expected ErrInactive, got %v", err)
	}
	if err := mod.SetActive(testOwner, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := mod.Claim(testController, testUser, 150); err != nil {
		t.Fatalf("claim inside window: %v", err)
	}
}

func TestAutomaticModeBlocksEarlyClaims(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(20)
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	mod := newTransfer(t, st, cfg)

	if _, err := mod.Claim(testController, testUser, 499); !errors.Is(err, ErrNotYetDue) {
		t.Fatalf("expected ErrNotYetDue, got %v", err)
	}
	if _, err := mod.Claim(testController, testUser, 500); err != nil {
		t.Fatalf("claim at distribution date: %v", err)
	}
}

func TestBatchDistributionSkipsClaimed(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(20)
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	mod := newTransfer(t, st, cfg)

	users := [][20]byte{userN(1), userN(2), userN(3)}
	// Pre-claim one user.
	if _, err := mod.Claim(testController, users[1], 600); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	report, err := mod.TriggerAutomaticDistribution(testOwner, users, 600)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if report.Requested != 3 || report.Settled != 2 || len(report.Skipped) != 1 {
		t.Fatalf("report %+v, want 3 requested / 2 settled / 1 skipped", report)
	}
	if report.Skipped[0].User != users[1] {
		t.Fatalf("skipped wrong user")
	}

	// Resubmitting the same batch settles nothing new.
	report, err = mod.TriggerAutomaticDistribution(testOwner, users, 601)
	if err != nil {
		t.Fatalf("re-distribute: %v", err)
	}
	if report.Settled != 0 || len(report.Skipped) != 3 {
		t.Fatalf("resubmitted report %+v, want 0 settled / 3 skipped", report)
	}
}

func TestBatchAllOrNothingAborts(t *testing.T) {
	st := newTestState(t)
	// Funding for exactly two claims of 20.
	fundBroker(t, st, 40)
	cfg := transferConfig(20)
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	mod := newTransfer(t, st, cfg)

	users := [][20]byte{userN(1), userN(2), userN(3), userN(4)}
	report, err := mod.TriggerAutomaticDistribution(testController, users, 600)
	if !errors.Is(err, ErrInsufficientFunding) {
		t.Fatalf("expected wrapped ErrInsufficientFunding, got %v", err)
	}
	if report == nil || report.Settled != 2 {
		t.Fatalf("report %+v, want 2 settled before abort", report)
	}

	// The failing user must not be marked claimed by the aborted attempt.
	if ok, reason := mod.CanClaim(users[2], 600); !ok {
		t.Fatalf("aborted user blocked from retry: %s", reason)
	}
}

func TestBatchBestEffortContinues(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 40)
	cfg := transferConfig(20)
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	cfg.BatchPolicy = BatchBestEffort
	mod := newTransfer(t, st, cfg)

	users := [][20]byte{userN(1), userN(2), userN(3), userN(4)}
	report, err := mod.TriggerAutomaticDistribution(testController, users, 600)
	if err != nil {
		t.Fatalf("best-effort batch must not abort: %v", err)
	}
	if report.Settled != 2 || len(report.Skipped) != 2 {
		t.Fatalf("report %+v, want 2 settled / 2 skipped", report)
	}
}

func TestBatchGuards(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(20)
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	cfg.MaxBatchSize = 2
	mod := newTransfer(t, st, cfg)

	if _, err := mod.TriggerAutomaticDistribution(testUser, [][20]byte{userN(1)}, 600); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger trigger: expected ErrUnauthorized, got %v", err)
	}
	if _, err := mod.TriggerAutomaticDistribution(testOwner, [][20]byte{userN(1)}, 499); !errors.Is(err, ErrNotYetDue) {
		t.Fatalf("early trigger: expected ErrNotYetDue, got %v", err)
	}
	oversized := [][20]byte{userN(1), userN(2), userN(3)}
	if _, err := mod.TriggerAutomaticDistribution(testOwner, oversized, 600); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("oversized batch: expected ErrBatchTooLarge, got %v", err)
	}

	manual := newTransfer(t, st, transferConfig(20))
	if _, err := manual.TriggerAutomaticDistribution(testOwner, [][20]byte{userN(1)}, 600); !errors.Is(err, ErrAutomaticOnly) {
		t.Fatalf("manual campaign trigger: expected ErrAutomaticOnly, got %v", err)
	}
}

func TestNFTMintClaim(t *testing.T) {
	st := newTestState(t)
	cfg := Config{Name: "mint pass", Asset: "PASS"}
	mod, err := NewNFTMint(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct mint: %v", err)
	}

	receipt, err := mod.Claim(testController, testUser, 100)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !receipt.HasTokenID || receipt.TokenID != 1 {
		t.Fatalf("receipt %+v, want auto token id 1", receipt)
	}
	owner, err := st.OwnerOf("PASS", receipt.TokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	var got [20]byte
	copy(got[:], owner)
	if got != testUser {
		t.Fatalf("minted token not owned by claimant")
	}
}

func TestNFTMintAssignedTokenID(t *testing.T) {
	st := newTestState(t)
	cfg := Config{Name: "mint pass", Asset: "PASS"}
	mod, err := NewNFTMint(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct mint: %v", err)
	}

	if err := mod.AssignTokenIDs(testUser, map[[20]byte]uint64{testUser: 7}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger assign: expected ErrUnauthorized, got %v", err)
	}
	if err := mod.AssignTokenIDs(testOwner, map[[20]byte]uint64{testUser: 7}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	receipt, err := mod.Claim(testController, testUser, 100)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if receipt.TokenID != 7 {
		t.Fatalf("token id %d, want assigned 7", receipt.TokenID)
	}

	// Assignments for claimed users are rejected.
	if err := mod.AssignTokenIDs(testOwner, map[[20]byte]uint64{testUser: 8}); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("post-claim assign: expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestRaffleWinnerGate(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(100)
	cfg.Name = "raffle"
	mod, err := NewRaffle(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct raffle: %v", err)
	}

	if _, err := mod.Claim(testController, testUser, 100); !errors.Is(err, ErrNotWinner) {
		t.Fatalf("non-winner claim: expected ErrNotWinner, got %v", err)
	}

	if err := mod.AddWinner(testUser, testUser); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("self-add winner: expected ErrUnauthorized, got %v", err)
	}
	if err := mod.SetWinners(testOwner, [][20]byte{testUser, userN(1)}); err != nil {
		t.Fatalf("set winners: %v", err)
	}

	receipt, err := mod.Claim(testController, testUser, 100)
	if err != nil {
		t.Fatalf("winner claim: %v", err)
	}
	if receipt.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("prize %s, want 100", receipt.Amount)
	}
}

func TestAirdropListGate(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	cfg := transferConfig(10)
	cfg.Name = "airdrop"
	cfg.Mode = ModeAutomatic
	cfg.DistributionDate = 500
	mod, err := NewAirdrop(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct airdrop: %v", err)
	}

	listed := [][20]byte{userN(1), userN(2)}
	if err := mod.AddEligibleBatch(testOwner, listed); err != nil {
		t.Fatalf("add eligible: %v", err)
	}

	// Distribution pays listed users and skips the rest under best-effort.
	cfgUsers := append(listed, userN(3))
	report, err := mod.TriggerAutomaticDistribution(testOwner, cfgUsers, 600)
	if errors.Is(err, ErrNotListed) {
		// All-or-nothing policy aborts at the unlisted user.
		if report.Settled != 2 {
			t.Fatalf("report %+v, want 2 settled before abort", report)
		}
	} else if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	first := userN(1)
	acc, _ := st.GetAccount(first[:])
	if acc.Balance("USDC").Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("listed user balance %s, want 10", acc.Balance("USDC"))
	}
	if ok, _ := mod.CanClaim(userN(3), 600); ok {
		t.Fatalf("unlisted user reported claimable")
	}
}

func TestWhitelistCapacity(t *testing.T) {
	st := newTestState(t)
	cfg := Config{Name: "allowlist", ExpectedCount: 2}
	mod, err := NewWhitelistSpot(testCampaignID, testOwner, testController, cfg, st)
	if err != nil {
		t.Fatalf("construct whitelist: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := mod.Claim(testController, userN(byte(i)), 100); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
	if _, err := mod.Claim(testController, userN(2), 100); !errors.Is(err, ErrInsufficientFunding) {
		t.Fatalf("over-capacity claim: expected ErrInsufficientFunding, got %v", err)
	}

	listed, err := mod.IsWhitelisted(userN(0))
	if err != nil {
		t.Fatalf("is whitelisted: %v", err)
	}
	if !listed {
		t.Fatalf("claimed user missing from whitelist")
	}
	if listed, _ := mod.IsWhitelisted(userN(2)); listed {
		t.Fatalf("rejected user present on whitelist")
	}
}

func TestConfigValidation(t *testing.T) {
	st := newTestState(t)

	cfg := transferConfig(0)
	cfg.PerClaimAmount = big.NewInt(0)
	if _, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("zero amount: expected ErrInvalidConfig, got %v", err)
	}

	cfg = transferConfig(20)
	cfg.Broker = [20]byte{}
	if _, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing broker: expected ErrInvalidConfig, got %v", err)
	}

	cfg = transferConfig(20)
	cfg.Asset = "UNKNOWN"
	if _, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unregistered asset: expected ErrInvalidConfig, got %v", err)
	}

	cfg = transferConfig(20)
	cfg.Mode = ModeAutomatic
	if _, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("automatic without date: expected ErrInvalidConfig, got %v", err)
	}

	cfg = transferConfig(20)
	cfg.Name = "  "
	if _, err := NewTokenTransfer(testCampaignID, testOwner, testController, cfg, st); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("blank name: expected ErrInvalidConfig, got %v", err)
	}
}

// statsFailingState commits claims normally but refuses the stats counter
// write.
type statsFailingState struct {
	*state.Manager
}

func (s *statsFailingState) KVPut(key []byte, value interface{}) error {
	if strings.HasPrefix(string(key), "reward/stats/") {
		return errors.New("disk full")
	}
	return s.Manager.KVPut(key, value)
}

func TestClaimSurvivesStatsWriteFailure(t *testing.T) {
	st := newTestState(t)
	fundBroker(t, st, 1000)
	mod, err := NewTokenTransfer(testCampaignID, testOwner, testController, transferConfig(20), &statsFailingState{Manager: st})
	if err != nil {
		t.Fatalf("construct transfer: %v", err)
	}

	receipt, err := mod.Claim(testController, testUser, 100)
	if err != nil {
		t.Fatalf("claim failed on a bookkeeping write: %v", err)
	}
	if receipt == nil || receipt.Amount.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("receipt %+v, want 20 USDC", receipt)
	}

	// The payout settled and the ledger entry stands.
	account, err := st.GetAccount(testUser[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance("USDC").Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("user balance %s, want 20", account.Balance("USDC"))
	}
	if _, err := mod.Claim(testController, testUser, 101); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("duplicate claim error %v, want ErrAlreadyClaimed", err)
	}
}
