package types

import "math/big"

// Account captures the ledger-visible state for an address: fungible balances
// by asset symbol, allowances granted to campaign brokers, and held
// non-fungible token identifiers by collection.
type Account struct {
	Nonce      uint64              `json:"nonce"`
	Balances   map[string]*big.Int `json:"balances"`
	Allowances []Allowance         `json:"allowances,omitempty"`
	Holdings   []Holding           `json:"holdings,omitempty"`
}

// Allowance is a spend approval granted by the account to a spender for one
// asset. Campaign brokers fund token rewards through allowances rather than
// direct transfers.
type Allowance struct {
	Spender [20]byte `json:"spender"`
	Asset   string   `json:"asset"`
	Amount  *big.Int `json:"amount"`
}

// Holding records ownership of a single non-fungible token.
type Holding struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"tokenId"`
}

// Balance returns the account's balance for the given asset, never nil.
func (a *Account) Balance(asset string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[asset]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := &Account{Nonce: a.Nonce}
	if a.Balances != nil {
		out.Balances = make(map[string]*big.Int, len(a.Balances))
		for sym, bal := range a.Balances {
			if bal == nil {
				bal = big.NewInt(0)
			}
			out.Balances[sym] = new(big.Int).Set(bal)
		}
	}
	if len(a.Allowances) > 0 {
		out.Allowances = make([]Allowance, len(a.Allowances))
		for i, al := range a.Allowances {
			out.Allowances[i] = Allowance{Spender: al.Spender, Asset: al.Asset}
			if al.Amount != nil {
				out.Allowances[i].Amount = new(big.Int).Set(al.Amount)
			} else {
				out.Allowances[i].Amount = big.NewInt(0)
			}
		}
	}
	if len(a.Holdings) > 0 {
		out.Holdings = append([]Holding(nil), a.Holdings...)
	}
	return out
}
