package merkle

import (
	"crypto/subtle"
	"fmt"
)

// InclusionProof shows one leaf belongs to a tree with a given root.
type InclusionProof struct {
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Steps    []ProofStep `json:"steps"`
}

// ProofStep is one sibling on the path from leaf to root. Side names
// where the sibling sits: "L" or "R".
type ProofStep struct {
	Side    string `json:"side"`
	Sibling string `json:"sibling"`
}

// Proof builds the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (*InclusionProof, error) {
	if t.Size() == 0 || index < 0 || index >= t.Size() {
		return nil, fmt.Errorf("merkle: leaf index %d out of range", index)
	}

	proof := &InclusionProof{
		LeafHash: t.levels[0][index],
		Root:     t.Root(),
	}
	for _, level := range t.levels[:len(t.levels)-1] {
		// Odd levels duplicate their tail during Build; mirror that here.
		if len(level)%2 != 0 && index == len(level)-1 {
			level = append(level[:len(level):len(level)], level[len(level)-1])
		}
		if index%2 == 0 {
			proof.Steps = append(proof.Steps, ProofStep{Side: "R", Sibling: level[index+1]})
		} else {
			proof.Steps = append(proof.Steps, ProofStep{Side: "L", Sibling: level[index-1]})
		}
		index /= 2
	}
	return proof, nil
}

// Verify replays the proof and compares against expectedRoot.
func Verify(proof *InclusionProof, expectedRoot string) bool {
	if proof == nil || expectedRoot == "" {
		return false
	}
	current := proof.LeafHash
	for _, step := range proof.Steps {
		switch step.Side {
		case "L":
			current = nodeHash(step.Sibling, current)
		case "R":
			current = nodeHash(current, step.Sibling)
		default:
			return false
		}
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(expectedRoot)) == 1
}
