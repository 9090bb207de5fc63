// Package merkle implements the sorted-pair Merkle scheme used for discount
// lists. Sibling hashes are combined in byte order, so a proof verifies
// independently of the leaf's position in the tree.
package merkle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrEmptyTree is returned when a tree is built over zero leaves.
var ErrEmptyTree = errors.New("merkle: no leaves")

// Verifier checks leaf membership against a committed root. It is injected
// into the claim pipeline so tests can substitute fixed trees.
type Verifier interface {
	Verify(leaf [32]byte, proof [][32]byte, root [32]byte) bool
}

// SortedPairVerifier is the production Verifier.
type SortedPairVerifier struct{}

// Verify folds the proof into the leaf with sorted-pair keccak256 hashing and
// compares the result against root.
func (SortedPairVerifier) Verify(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	node := leaf
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

// DiscountLeaf computes the leaf committing a user address to a discount
// rate: keccak256(address ‖ 32-byte big-endian rate).
func DiscountLeaf(user [20]byte, rate uint64) [32]byte {
	buf := make([]byte, 20+32)
	copy(buf, user[:])
	binary.BigEndian.PutUint64(buf[44:], rate)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// AmountLeaf commits a user address to an arbitrary big integer value. Used
// by operator tooling for allocation trees.
func AmountLeaf(user [20]byte, amount *big.Int) [32]byte {
	value := big.NewInt(0)
	if amount != nil {
		value = amount
	}
	buf := make([]byte, 20+32)
	copy(buf, user[:])
	value.FillBytes(buf[20:])
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

func hashPair(a, b [32]byte) [32]byte {
	var out [32]byte
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

// Tree is a fully materialised sorted-pair Merkle tree. Operators build one
// over a discount list to publish the root and hand out per-user proofs.
type Tree struct {
	leaves [][32]byte
	levels [][][32]byte
}

// NewTree builds a tree over the given leaves. Duplicate leaves are kept;
// leaf order is normalised so identical sets produce identical roots.
func NewTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	sorted := make([][32]byte, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	levels := [][][32]byte{sorted}
	current := sorted
	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				// Odd node is carried up unchanged.
				next = append(next, current[i])
				continue
			}
			next = append(next, hashPair(current[i], current[i+1]))
		}
		levels = append(levels, next)
		current = next
	}
	return &Tree{leaves: sorted, levels: levels}, nil
}

// Root returns the committed root of the tree.
func (t *Tree) Root() [32]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Prove returns the sibling path for the given leaf. The boolean reports
// whether the leaf is part of the tree.
func (t *Tree) Prove(leaf [32]byte) ([][32]byte, bool) {
	idx := -1
	for i, candidate := range t.leaves {
		if candidate == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	proof := make([][32]byte, 0, len(t.levels))
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, true
}
