package attestor

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

func testSeed(fill byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = fill
	}
	return seed
}

func blsTestSnapshot() *types.Snapshot {
	return &types.Snapshot{
		SnapshotID: "snap-bls-1",
		HashScheme: "keccak256",
		RootAmount: 1500,
		RootDigest: [32]byte{0x01, 0x02, 0x03},
	}
}

func TestBLSAttestor_SignAndVerify(t *testing.T) {
	a, err := NewBLSAttestor(testSeed(0x42))
	require.NoError(t, err)

	snapshot := blsTestSnapshot()
	att, err := a.Attest(context.Background(), snapshot)
	require.NoError(t, err)
	require.NotNil(t, att)

	assert.Equal(t, SchemeBLS, att.Scheme)
	assert.Equal(t, snapshot.SnapshotID, att.SnapshotID)
	assert.Len(t, att.Payload, 48)   // compressed G1
	assert.Len(t, att.PublicKey, 96) // compressed G2

	assert.True(t, VerifyBLS(att, snapshot.SnapshotID, snapshot.Root()))
}

func TestBLSAttestor_VerifyRejectsTampering(t *testing.T) {
	a, err := NewBLSAttestor(testSeed(0x42))
	require.NoError(t, err)

	snapshot := blsTestSnapshot()
	att, err := a.Attest(context.Background(), snapshot)
	require.NoError(t, err)

	t.Run("wrong snapshot ID", func(t *testing.T) {
		assert.False(t, VerifyBLS(att, "snap-other", snapshot.Root()))
	})

	t.Run("wrong root amount", func(t *testing.T) {
		root := snapshot.Root()
		root.Amount++
		assert.False(t, VerifyBLS(att, snapshot.SnapshotID, root))
	})

	t.Run("wrong root digest", func(t *testing.T) {
		root := snapshot.Root()
		root.Digest[0] ^= 0xFF
		assert.False(t, VerifyBLS(att, snapshot.SnapshotID, root))
	})

	t.Run("wrong public key", func(t *testing.T) {
		other, err := NewBLSAttestor(testSeed(0x43))
		require.NoError(t, err)

		forged := *att
		forged.PublicKey = other.PublicKey()
		assert.False(t, VerifyBLS(&forged, snapshot.SnapshotID, snapshot.Root()))
	})

	t.Run("garbage payload", func(t *testing.T) {
		forged := *att
		forged.Payload = []byte{0x01, 0x02}
		assert.False(t, VerifyBLS(&forged, snapshot.SnapshotID, snapshot.Root()))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		forged := *att
		forged.Scheme = SchemeJWT
		assert.False(t, VerifyBLS(&forged, snapshot.SnapshotID, snapshot.Root()))
	})

	t.Run("nil attestation", func(t *testing.T) {
		assert.False(t, VerifyBLS(nil, snapshot.SnapshotID, snapshot.Root()))
	})
}

func TestBLSAttestor_DeterministicFromSeed(t *testing.T) {
	a1, err := NewBLSAttestor(testSeed(0x07))
	require.NoError(t, err)
	a2, err := NewBLSAttestor(testSeed(0x07))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a1.PublicKey(), a2.PublicKey()))

	a3, err := NewBLSAttestor(testSeed(0x08))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a1.PublicKey(), a3.PublicKey()))
}

func TestBLSAttestor_InvalidSeed(t *testing.T) {
	_, err := NewBLSAttestor([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	_, err = NewBLSAttestor(make([]byte, 32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero scalar")
}

func TestBLSAttestor_FromHex(t *testing.T) {
	a, err := NewBLSAttestorFromHex("0x4242424242424242424242424242424242424242424242424242424242424242")
	require.NoError(t, err)

	fromBytes, err := NewBLSAttestor(testSeed(0x42))
	require.NoError(t, err)
	assert.Equal(t, fromBytes.PublicKey(), a.PublicKey())

	_, err = NewBLSAttestorFromHex("not-hex")
	require.Error(t, err)
}

func TestMessage_BindsAllFields(t *testing.T) {
	root := sumtree.Commitment{Amount: 100, Digest: [32]byte{0xaa}}

	base := Message("snap-1", root)

	otherID := Message("snap-2", root)
	assert.NotEqual(t, base, otherID)

	otherAmount := root
	otherAmount.Amount = 101
	assert.NotEqual(t, base, Message("snap-1", otherAmount))

	otherDigest := root
	otherDigest.Digest[0] = 0xbb
	assert.NotEqual(t, base, Message("snap-1", otherDigest))
}
