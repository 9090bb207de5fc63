package state

import (
	"encoding/binary"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offergate/core/types"
)

var (
	collectionPrefix = []byte("collection:")
	nftOwnerPrefix   = []byte("nft-owner:")
)

// ErrTokenMinted is returned when a mint targets an identifier that already
// has an owner.
var ErrTokenMinted = fmt.Errorf("state: token already minted")

// ErrTokenUnknown is returned when a token identifier has no recorded owner.
var ErrTokenUnknown = fmt.Errorf("state: token not minted")

// CollectionMetadata describes a non-fungible collection known to the ledger.
type CollectionMetadata struct {
	Symbol      string
	Name        string
	NextTokenID uint64
}

func collectionKey(symbol string) []byte {
	buf := make([]byte, len(collectionPrefix)+len(symbol))
	copy(buf, collectionPrefix)
	copy(buf[len(collectionPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func nftOwnerKey(symbol string, tokenID uint64) []byte {
	buf := make([]byte, len(nftOwnerPrefix)+len(symbol)+1+8)
	copy(buf, nftOwnerPrefix)
	copy(buf[len(nftOwnerPrefix):], symbol)
	buf[len(nftOwnerPrefix)+len(symbol)] = ':'
	binary.BigEndian.PutUint64(buf[len(buf)-8:], tokenID)
	return ethcrypto.Keccak256(buf)
}

// RegisterCollection stores the metadata for a non-fungible collection. Token
// identifiers handed out by auto-mints start at 1.
func (m *Manager) RegisterCollection(symbol, name string) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("collection symbol must not be empty")
	}
	existing, err := m.loadCollection(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("collection %s already registered", normalized)
	}
	meta := &CollectionMetadata{Symbol: normalized, Name: name, NextTokenID: 1}
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return m.db.Put(collectionKey(normalized), encoded)
}

// CollectionExists reports whether the given collection has been registered.
func (m *Manager) CollectionExists(symbol string) bool {
	meta, err := m.loadCollection(strings.ToUpper(strings.TrimSpace(symbol)))
	return err == nil && meta != nil
}

func (m *Manager) loadCollection(symbol string) (*CollectionMetadata, error) {
	data, err := m.get(collectionKey(symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	meta := new(CollectionMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) writeCollection(meta *CollectionMetadata) error {
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return m.db.Put(collectionKey(meta.Symbol), encoded)
}

// MintToken mints a token from the collection to the recipient. A zero
// tokenID requests the next auto-assigned identifier. The minted identifier
// is returned.
func (m *Manager) MintToken(symbol string, tokenID uint64, to []byte) (uint64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	meta, err := m.loadCollection(normalized)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return 0, fmt.Errorf("collection %s not registered", normalized)
	}
	if tokenID == 0 {
		tokenID = meta.NextTokenID
		// Skip over identifiers consumed by manual assignments.
		for {
			owned, err := m.db.Has(nftOwnerKey(normalized, tokenID))
			if err != nil {
				return 0, err
			}
			if !owned {
				break
			}
			tokenID++
		}
	} else {
		owned, err := m.db.Has(nftOwnerKey(normalized, tokenID))
		if err != nil {
			return 0, err
		}
		if owned {
			return 0, fmt.Errorf("%w: %s #%d", ErrTokenMinted, normalized, tokenID)
		}
	}
	if err := m.db.Put(nftOwnerKey(normalized, tokenID), append([]byte(nil), to...)); err != nil {
		return 0, err
	}
	if tokenID >= meta.NextTokenID {
		meta.NextTokenID = tokenID + 1
		if err := m.writeCollection(meta); err != nil {
			return 0, err
		}
	}
	account, err := m.GetAccount(to)
	if err != nil {
		return 0, err
	}
	account.Holdings = append(account.Holdings, types.Holding{Collection: normalized, TokenID: tokenID})
	if err := m.PutAccount(to, account); err != nil {
		return 0, err
	}
	return tokenID, nil
}

// OwnerOf returns the current owner of the token, if minted.
func (m *Manager) OwnerOf(symbol string, tokenID uint64) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	data, err := m.get(nftOwnerKey(normalized, tokenID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s #%d", ErrTokenUnknown, normalized, tokenID)
	}
	return data, nil
}
