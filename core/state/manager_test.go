package state

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"offergate/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(b byte) []byte {
	out := make([]byte, 20)
	out[19] = b
	return out
}

func addr20(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager(t)
	owner := addr(1)

	acc, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("get missing account: %v", err)
	}
	if acc.Nonce != 0 || len(acc.Balances) != 0 {
		t.Fatalf("missing account must be empty, got %+v", acc)
	}

	acc.Nonce = 3
	acc.Balances["USDC"] = big.NewInt(1500)
	acc.Balances["GOLD"] = big.NewInt(42)
	if err := m.PutAccount(owner, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}

	loaded, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if loaded.Nonce != 3 {
		t.Fatalf("nonce %d, want 3", loaded.Nonce)
	}
	if loaded.Balance("USDC").Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("USDC balance %s, want 1500", loaded.Balance("USDC"))
	}
	if loaded.Balance("GOLD").Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("GOLD balance %s, want 42", loaded.Balance("GOLD"))
	}
}

func TestCreditAndTransfer(t *testing.T) {
	m := newTestManager(t)
	from, to := addr(1), addr(2)

	if err := m.Credit(from, "usdc", big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.Transfer(from, to, "USDC", big.NewInt(300)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	fromAcc, _ := m.GetAccount(from)
	toAcc, _ := m.GetAccount(to)
	if fromAcc.Balance("USDC").Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("sender balance %s, want 700", fromAcc.Balance("USDC"))
	}
	if toAcc.Balance("USDC").Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("recipient balance %s, want 300", toAcc.Balance("USDC"))
	}

	if err := m.Transfer(from, to, "USDC", big.NewInt(701)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft: expected ErrInsufficientBalance, got %v", err)
	}
}

func TestAllowanceLifecycle(t *testing.T) {
	m := newTestManager(t)
	owner, recipient := addr(1), addr(2)
	spender := addr20(3)

	if err := m.Credit(owner, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.Approve(owner, spender, "USDC", big.NewInt(400)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	allowance, err := m.Allowance(owner, spender, "USDC")
	if err != nil {
		t.Fatalf("read allowance: %v", err)
	}
	if allowance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("allowance %s, want 400", allowance)
	}

	if err := m.SpendAllowance(owner, spender, recipient, "USDC", big.NewInt(150)); err != nil {
		t.Fatalf("spend allowance: %v", err)
	}
	allowance, _ = m.Allowance(owner, spender, "USDC")
	if allowance.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("allowance after spend %s, want 250", allowance)
	}
	recAcc, _ := m.GetAccount(recipient)
	if recAcc.Balance("USDC").Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("recipient balance %s, want 150", recAcc.Balance("USDC"))
	}

	if err := m.SpendAllowance(owner, spender, recipient, "USDC", big.NewInt(251)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("over-allowance spend: expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestSpendAllowanceRequiresBalance(t *testing.T) {
	m := newTestManager(t)
	owner, recipient := addr(1), addr(2)
	spender := addr20(3)

	if err := m.Credit(owner, "USDC", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// Allowance larger than the funded balance.
	if err := m.Approve(owner, spender, "USDC", big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := m.SpendAllowance(owner, spender, recipient, "USDC", big.NewInt(500)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// A failed spend must not consume allowance.
	allowance, _ := m.Allowance(owner, spender, "USDC")
	if allowance.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("allowance after failed spend %s, want 1000", allowance)
	}
}

func TestTokenRegistry(t *testing.T) {
	m := newTestManager(t)

	if m.TokenExists("USDC") {
		t.Fatalf("unregistered token reported as existing")
	}
	if err := m.RegisterToken("usdc", "USD Coin", 6); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if !m.TokenExists("USDC") || !m.TokenExists(" usdc ") {
		t.Fatalf("token lookup must normalise case and whitespace")
	}
	if err := m.RegisterToken("USDC", "USD Coin", 6); err == nil {
		t.Fatalf("duplicate registration must fail")
	}
}

func TestRoles(t *testing.T) {
	m := newTestManager(t)
	member := addr(7)

	if m.HasRole("ROLE_CAMPAIGN_ADMIN", member) {
		t.Fatalf("role reported before grant")
	}
	if err := m.GrantRole("ROLE_CAMPAIGN_ADMIN", member); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	// Granting twice is a no-op.
	if err := m.GrantRole("ROLE_CAMPAIGN_ADMIN", member); err != nil {
		t.Fatalf("re-grant role: %v", err)
	}
	if !m.HasRole("ROLE_CAMPAIGN_ADMIN", member) {
		t.Fatalf("role not reported after grant")
	}
	if m.HasRole("ROLE_CAMPAIGN_ADMIN", addr(8)) {
		t.Fatalf("role reported for non-member")
	}
}

func TestCollectionsAndMinting(t *testing.T) {
	m := newTestManager(t)
	holder := addr(1)

	if err := m.RegisterCollection("PASS", "Season Pass"); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	if !m.CollectionExists("PASS") {
		t.Fatalf("collection not reported after registration")
	}

	// Auto-assignment starts at 1.
	id, err := m.MintToken("PASS", 0, holder)
	if err != nil {
		t.Fatalf("auto mint: %v", err)
	}
	if id != 1 {
		t.Fatalf("first auto token id %d, want 1", id)
	}

	// Explicit id, then auto-assignment skips it.
	if _, err := m.MintToken("PASS", 2, addr(2)); err != nil {
		t.Fatalf("explicit mint: %v", err)
	}
	id, err = m.MintToken("PASS", 0, addr(3))
	if err != nil {
		t.Fatalf("auto mint after explicit: %v", err)
	}
	if id != 3 {
		t.Fatalf("auto mint must skip consumed id 2, got %d", id)
	}

	if _, err := m.MintToken("PASS", 2, addr(4)); !errors.Is(err, ErrTokenMinted) {
		t.Fatalf("double mint: expected ErrTokenMinted, got %v", err)
	}

	owner, err := m.OwnerOf("PASS", 2)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if !bytes.Equal(owner, addr(2)) {
		t.Fatalf("owner mismatch for token 2")
	}
	if _, err := m.OwnerOf("PASS", 99); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected ErrTokenUnknown, got %v", err)
	}
}

func TestKVList(t *testing.T) {
	m := newTestManager(t)
	key := []byte("test/list")

	if err := m.KVAppend(key, addr(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.KVAppend(key, addr(2)); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Duplicate entries are dropped.
	if err := m.KVAppend(key, addr(1)); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}

	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length %d, want 2", len(list))
	}
}

func TestKVPutGet(t *testing.T) {
	m := newTestManager(t)
	type record struct {
		Total uint64
		Count uint64
	}

	var out record
	found, err := m.KVGet([]byte("missing"), &out)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Fatalf("missing key reported as found")
	}

	in := record{Total: 10, Count: 2}
	if err := m.KVPut([]byte("tally"), &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	found, err = m.KVGet([]byte("tally"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || out != in {
		t.Fatalf("round trip mismatch: found=%v got=%+v", found, out)
	}
}
