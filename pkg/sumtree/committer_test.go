package sumtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeafCommitment(t *testing.T) {
	committer := NewKeccakCommitter()

	leaf := committer.Leaf(100)
	require.Equal(t, uint64(100), leaf.Amount)
	require.NotEqual(t, [32]byte{}, leaf.Digest)

	// Deterministic for the same amount.
	require.True(t, leaf.Equal(committer.Leaf(100)))

	// Different amounts get different digests.
	require.NotEqual(t, leaf.Digest, committer.Leaf(101).Digest)

	// Zero is a valid balance with a non-zero digest.
	require.NotEqual(t, [32]byte{}, committer.Leaf(0).Digest)
}

func TestCombineCommitments(t *testing.T) {
	committer := NewKeccakCommitter()

	left := committer.Leaf(100)
	right := committer.Leaf(200)

	parent, err := committer.Combine(left, right)
	require.NoError(t, err)
	require.Equal(t, uint64(300), parent.Amount)
	require.NotEqual(t, left.Digest, parent.Digest)
	require.NotEqual(t, right.Digest, parent.Digest)

	// Argument order matters.
	swapped, err := committer.Combine(right, left)
	require.NoError(t, err)
	require.Equal(t, parent.Amount, swapped.Amount)
	require.NotEqual(t, parent.Digest, swapped.Digest)
}

func TestCombineBindsChildAmounts(t *testing.T) {
	committer := NewKeccakCommitter()

	left := committer.Leaf(100)
	right := committer.Leaf(200)
	parent, err := committer.Combine(left, right)
	require.NoError(t, err)

	// Substituting a child's amount while keeping its digest must change
	// the parent digest; this is what separates a sum tree from a plain
	// merkle tree.
	forgedLeft := Commitment{Amount: 150, Digest: left.Digest}
	forgedRight := Commitment{Amount: 150, Digest: right.Digest}
	forgedParent, err := committer.Combine(forgedLeft, forgedRight)
	require.NoError(t, err)
	require.Equal(t, parent.Amount, forgedParent.Amount)
	require.NotEqual(t, parent.Digest, forgedParent.Digest)
}

func TestCombineOverflow(t *testing.T) {
	committer := NewKeccakCommitter()

	testCases := []struct {
		name        string
		left        uint64
		right       uint64
		expectError bool
	}{
		{"No overflow", 100, 200, false},
		{"Max plus zero", ^uint64(0), 0, false},
		{"Max plus one", ^uint64(0), 1, true},
		{"Half plus half", ^uint64(0)/2 + 1, ^uint64(0)/2 + 1, true},
		{"Just fits", ^uint64(0) - 1, 1, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := committer.Combine(committer.Leaf(tc.left), committer.Leaf(tc.right))
			if tc.expectError {
				require.ErrorIs(t, err, ErrAmountOverflow)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLeafInternalDomainSeparation(t *testing.T) {
	// A leaf digest and an internal digest over byte-equal hash payloads
	// must differ because of the domain tags. Compare a leaf against an
	// internal node whose serialized child fields happen to be short.
	committer := NewKeccakCommitter()

	leaf := committer.Leaf(7)
	parent, err := committer.Combine(committer.Leaf(3), committer.Leaf(4))
	require.NoError(t, err)

	require.Equal(t, leaf.Amount, parent.Amount)
	require.NotEqual(t, leaf.Digest, parent.Digest)
}

func TestCommitterSchemes(t *testing.T) {
	keccak := NewKeccakCommitter()
	sha3c := NewSHA3Committer()

	// Both schemes are internally consistent but mutually incompatible.
	require.Equal(t, keccak.Leaf(100).Amount, sha3c.Leaf(100).Amount)
	require.NotEqual(t, keccak.Leaf(100).Digest, sha3c.Leaf(100).Digest)

	balances := []uint64{10, 20, 30, 40}
	for _, committer := range []Committer{keccak, sha3c} {
		tree, err := NewMerkleSumTree(committer, balances)
		require.NoError(t, err)
		root, err := tree.Root()
		require.NoError(t, err)
		proof, err := tree.Prove(1)
		require.NoError(t, err)
		require.True(t, proof.Verify(committer, 20, root))
	}

	// A proof generated under one scheme does not verify under the other.
	tree, err := NewMerkleSumTree(keccak, balances)
	require.NoError(t, err)
	root, err := tree.Root()
	require.NoError(t, err)
	proof, err := tree.Prove(1)
	require.NoError(t, err)
	require.False(t, proof.Verify(sha3c, 20, root))
}
