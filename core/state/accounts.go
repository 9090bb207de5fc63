package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offergate/core/types"
)

var accountPrefix = []byte("account:")

// ErrInsufficientBalance is returned when a debit exceeds the available funds.
var ErrInsufficientBalance = fmt.Errorf("state: insufficient balance")

// ErrInsufficientAllowance is returned when a spender pulls more than the
// holder approved.
var ErrInsufficientAllowance = fmt.Errorf("state: insufficient allowance")

type storedBalance struct {
	Asset  string
	Amount *big.Int
}

type storedAllowance struct {
	Spender []byte
	Asset   string
	Amount  *big.Int
}

type storedHolding struct {
	Collection string
	TokenID    uint64
}

type storedAccount struct {
	Nonce      uint64
	Balances   []storedBalance
	Allowances []storedAllowance
	Holdings   []storedHolding
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

// GetAccount reconstructs the account stored under the provided address. A
// missing account yields an empty account, never nil.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	account := &types.Account{Balances: make(map[string]*big.Int)}
	data, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return account, nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	account.Nonce = stored.Nonce
	for _, bal := range stored.Balances {
		amount := bal.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		account.Balances[bal.Asset] = new(big.Int).Set(amount)
	}
	for _, al := range stored.Allowances {
		entry := types.Allowance{Asset: al.Asset, Amount: big.NewInt(0)}
		copy(entry.Spender[:], al.Spender)
		if al.Amount != nil {
			entry.Amount = new(big.Int).Set(al.Amount)
		}
		account.Allowances = append(account.Allowances, entry)
	}
	for _, h := range stored.Holdings {
		account.Holdings = append(account.Holdings, types.Holding{Collection: h.Collection, TokenID: h.TokenID})
	}
	return account, nil
}

// PutAccount persists the provided account under the supplied address. Entries
// are sorted before encoding so stored bytes stay deterministic.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("nil account")
	}
	stored := &storedAccount{Nonce: account.Nonce}
	for asset, amount := range account.Balances {
		if amount == nil {
			amount = big.NewInt(0)
		}
		stored.Balances = append(stored.Balances, storedBalance{Asset: asset, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(stored.Balances, func(i, j int) bool {
		return stored.Balances[i].Asset < stored.Balances[j].Asset
	})
	for _, al := range account.Allowances {
		amount := al.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		stored.Allowances = append(stored.Allowances, storedAllowance{
			Spender: append([]byte(nil), al.Spender[:]...),
			Asset:   al.Asset,
			Amount:  new(big.Int).Set(amount),
		})
	}
	sort.Slice(stored.Allowances, func(i, j int) bool {
		if c := bytes.Compare(stored.Allowances[i].Spender, stored.Allowances[j].Spender); c != 0 {
			return c < 0
		}
		return stored.Allowances[i].Asset < stored.Allowances[j].Asset
	})
	for _, h := range account.Holdings {
		stored.Holdings = append(stored.Holdings, storedHolding{Collection: h.Collection, TokenID: h.TokenID})
	}
	sort.Slice(stored.Holdings, func(i, j int) bool {
		if stored.Holdings[i].Collection != stored.Holdings[j].Collection {
			return stored.Holdings[i].Collection < stored.Holdings[j].Collection
		}
		return stored.Holdings[i].TokenID < stored.Holdings[j].TokenID
	})
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Credit adds amount of asset to the account stored under addr.
func (m *Manager) Credit(addr []byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	asset = normalizeAsset(asset)
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balances[asset] = new(big.Int).Add(account.Balance(asset), amount)
	return m.PutAccount(addr, account)
}

// Transfer moves amount of asset between two accounts, failing when the
// source balance does not cover it.
func (m *Manager) Transfer(from, to []byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	asset = normalizeAsset(asset)
	source, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	balance := source.Balance(asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, asset, balance, amount)
	}
	source.Balances[asset] = new(big.Int).Sub(balance, amount)
	if err := m.PutAccount(from, source); err != nil {
		return err
	}
	return m.Credit(to, asset, amount)
}

// Approve sets the allowance the owner grants to spender for the given asset,
// replacing any previous approval.
func (m *Manager) Approve(owner []byte, spender [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("allowance must be non-negative")
	}
	asset = normalizeAsset(asset)
	account, err := m.GetAccount(owner)
	if err != nil {
		return err
	}
	replaced := false
	for i := range account.Allowances {
		if account.Allowances[i].Spender == spender && account.Allowances[i].Asset == asset {
			account.Allowances[i].Amount = new(big.Int).Set(amount)
			replaced = true
			break
		}
	}
	if !replaced {
		account.Allowances = append(account.Allowances, types.Allowance{
			Spender: spender,
			Asset:   asset,
			Amount:  new(big.Int).Set(amount),
		})
	}
	return m.PutAccount(owner, account)
}

// Allowance returns the remaining approval owner granted to spender for asset.
func (m *Manager) Allowance(owner []byte, spender [20]byte, asset string) (*big.Int, error) {
	asset = normalizeAsset(asset)
	account, err := m.GetAccount(owner)
	if err != nil {
		return nil, err
	}
	for _, al := range account.Allowances {
		if al.Spender == spender && al.Asset == asset {
			if al.Amount == nil {
				return big.NewInt(0), nil
			}
			return new(big.Int).Set(al.Amount), nil
		}
	}
	return big.NewInt(0), nil
}

// SpendAllowance pulls amount of asset from owner to recipient on behalf of
// spender, decrementing both the allowance and the owner balance. Both checks
// happen before any write so a failure leaves state untouched.
func (m *Manager) SpendAllowance(owner []byte, spender [20]byte, recipient []byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("spend amount must be positive")
	}
	asset = normalizeAsset(asset)
	account, err := m.GetAccount(owner)
	if err != nil {
		return err
	}
	idx := -1
	for i := range account.Allowances {
		if account.Allowances[i].Spender == spender && account.Allowances[i].Asset == asset {
			idx = i
			break
		}
	}
	if idx < 0 || account.Allowances[idx].Amount == nil || account.Allowances[idx].Amount.Cmp(amount) < 0 {
		remaining := big.NewInt(0)
		if idx >= 0 && account.Allowances[idx].Amount != nil {
			remaining = account.Allowances[idx].Amount
		}
		return fmt.Errorf("%w: %s remaining %s, need %s", ErrInsufficientAllowance, asset, remaining, amount)
	}
	balance := account.Balance(asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, need %s", ErrInsufficientBalance, asset, balance, amount)
	}
	account.Allowances[idx].Amount = new(big.Int).Sub(account.Allowances[idx].Amount, amount)
	account.Balances[asset] = new(big.Int).Sub(balance, amount)
	if err := m.PutAccount(owner, account); err != nil {
		return err
	}
	return m.Credit(recipient, asset, amount)
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
