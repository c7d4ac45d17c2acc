// Package merkle builds SHA-256 Merkle trees over ordered leaves, used
// to fingerprint bundle contents so a receiver can prove a single
// attestation belongs to an archived snapshot without the full chain.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain separation prefixes keep leaf and interior hashes from
// colliding.
const (
	leafPrefix = "isnad:leaf:v1\x00"
	nodePrefix = "isnad:node:v1\x00"
)

// Tree holds every level of node hashes, leaves first.
type Tree struct {
	levels [][]string
}

// LeafHash hashes one leaf's bytes.
func LeafHash(data []byte) string {
	h := sha256.New()
	h.Write([]byte(leafPrefix))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func nodeHash(left, right string) string {
	h := sha256.New()
	h.Write([]byte(nodePrefix))
	h.Write(hexToBytes(left))
	h.Write(hexToBytes(right))
	return hex.EncodeToString(h.Sum(nil))
}

// Build constructs a tree over leaves in the given order. An odd level
// duplicates its last hash. An empty input yields a tree whose root is
// the empty string.
func Build(leaves [][]byte) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	level := make([]string, len(leaves))
	for i, leaf := range leaves {
		level[i] = LeafHash(leaf)
	}

	t := &Tree{levels: [][]string{level}}
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = nodeHash(level[i], level[i+1])
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the root hash, or "" for an empty tree.
func (t *Tree) Root() string {
	if len(t.levels) == 0 {
		return ""
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Size returns the leaf count.
func (t *Tree) Size() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// RootOf is the common case: the root over a list of string leaves,
// typically attestation IDs in ledger order.
func RootOf(ids []string) string {
	leaves := make([][]byte, len(ids))
	for i, id := range ids {
		leaves[i] = []byte(id)
	}
	return Build(leaves).Root()
}

func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		// Hashes only ever come from this package; a bad one is a bug.
		panic(fmt.Sprintf("merkle: malformed hash %q", s))
	}
	return b
}
