package sumtree

import (
	"fmt"
	"sync"
)

// MerkleSumTree owns an ordered sequence of leaf commitments. Position i in
// the balance list handed to NewMerkleSumTree is permanently leaf index i;
// leaves are never reordered after construction.
//
// The tree is read-only once built. Root and Prove recompute from the
// immutable leaf data, so a tree may be shared across any number of
// concurrent callers without locking.
type MerkleSumTree struct {
	committer Committer
	leaves    []Commitment

	// Root is deterministic, so it is computed once and cached.
	rootOnce sync.Once
	root     Commitment
	rootErr  error
}

// NewMerkleSumTree builds a tree from an ordered list of balances.
// Returns ErrEmptyBalances if the list is empty.
func NewMerkleSumTree(committer Committer, balances []uint64) (*MerkleSumTree, error) {
	if committer == nil {
		return nil, fmt.Errorf("committer cannot be nil")
	}
	if len(balances) == 0 {
		return nil, ErrEmptyBalances
	}

	leaves := make([]Commitment, len(balances))
	for i, balance := range balances {
		leaves[i] = committer.Leaf(balance)
	}

	return &MerkleSumTree{
		committer: committer,
		leaves:    leaves,
	}, nil
}

// LeafCount returns the number of leaves in the tree.
func (t *MerkleSumTree) LeafCount() int {
	return len(t.leaves)
}

// Leaf returns the leaf commitment at the given position.
func (t *MerkleSumTree) Leaf(position int) (Commitment, error) {
	if position < 0 || position >= len(t.leaves) {
		return Commitment{}, fmt.Errorf("position %d with %d leaves: %w", position, len(t.leaves), ErrPositionOutOfRange)
	}
	return t.leaves[position], nil
}

// Root returns the root commitment. Its amount equals the sum of all leaf
// balances; its digest binds every leaf's amount and position.
// A single-leaf tree has that leaf's commitment as its own root.
func (t *MerkleSumTree) Root() (Commitment, error) {
	t.rootOnce.Do(func() {
		t.root, t.rootErr = t.subtreeRoot(t.leaves)
	})
	return t.root, t.rootErr
}

// subtreeRoot combines a leaf range bottom-up. The shape policy splits
// [start, end) at mid = start + (end-start)/2, left = [start, mid),
// right = [mid, end). Proof generation walks the identical split, which is
// what makes proofs verifiable against roots computed here.
func (t *MerkleSumTree) subtreeRoot(nodes []Commitment) (Commitment, error) {
	if len(nodes) == 1 {
		return nodes[0], nil
	}

	mid := len(nodes) / 2

	left, err := t.subtreeRoot(nodes[:mid])
	if err != nil {
		return Commitment{}, err
	}
	right, err := t.subtreeRoot(nodes[mid:])
	if err != nil {
		return Commitment{}, err
	}

	return t.committer.Combine(left, right)
}

// Prove generates an inclusion proof for the leaf at the given position.
// Returns ErrPositionOutOfRange if position >= LeafCount().
//
// The proof carries exactly one sibling commitment per tree level on the
// leaf-to-root path, ordered from the leaf's immediate sibling upward.
func (t *MerkleSumTree) Prove(position int) (*InclusionProof, error) {
	if position < 0 || position >= len(t.leaves) {
		return nil, fmt.Errorf("position %d with %d leaves: %w", position, len(t.leaves), ErrPositionOutOfRange)
	}

	path, err := t.provePath(position, t.leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to collect sibling path for position %d: %w", position, err)
	}

	return &InclusionProof{
		Position: position,
		Path:     path,
	}, nil
}

// provePath recurses down the half containing the target leaf. At each
// level the entire other half is combined into a single sibling commitment
// and recorded with the direction of the target half. Entries are appended
// after the recursive call returns, so the path reads leaf to root.
func (t *MerkleSumTree) provePath(position int, nodes []Commitment) ([]PathEntry, error) {
	if len(nodes) == 1 {
		return nil, nil
	}

	mid := len(nodes) / 2

	if position < mid {
		path, err := t.provePath(position, nodes[:mid])
		if err != nil {
			return nil, err
		}
		sibling, err := t.subtreeRoot(nodes[mid:])
		if err != nil {
			return nil, err
		}
		return append(path, PathEntry{Sibling: sibling, Direction: DirectionLeft}), nil
	}

	path, err := t.provePath(position-mid, nodes[mid:])
	if err != nil {
		return nil, err
	}
	sibling, err := t.subtreeRoot(nodes[:mid])
	if err != nil {
		return nil, err
	}
	return append(path, PathEntry{Sibling: sibling, Direction: DirectionRight}), nil
}
