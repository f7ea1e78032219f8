package attestor

import (
	"context"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// Domain separation tag for hash-to-curve, per the BLS signature draft
const blsSignatureDST = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"

var blsG2Generator bls12381.G2Affine

func init() {
	_, _, _, blsG2Generator = bls12381.Generators()
}

// BLSAttestor signs root commitments with a BLS12-381 key. Signatures live
// in G1 (48 bytes compressed), public keys in G2 (96 bytes compressed).
type BLSAttestor struct {
	scalar *fr.Element
	pubkey bls12381.G2Affine
}

// NewBLSAttestor creates an attestor from a 32-byte seed. The seed is
// reduced modulo the scalar field order, so it must come from a
// uniform source (hex-decoded from configuration).
func NewBLSAttestor(seed []byte) (*BLSAttestor, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes, got %d", len(seed))
	}

	sk := new(big.Int).SetBytes(seed[:32])
	sk.Mod(sk, fr.Modulus())
	if sk.Sign() == 0 {
		return nil, fmt.Errorf("seed reduces to the zero scalar")
	}

	scalar := new(fr.Element)
	scalar.SetBigInt(sk)

	a := &BLSAttestor{scalar: scalar}
	a.pubkey.ScalarMultiplication(&blsG2Generator, sk)
	return a, nil
}

// NewBLSAttestorFromHex creates an attestor from a hex-encoded seed
func NewBLSAttestorFromHex(seedHex string) (*BLSAttestor, error) {
	seed, err := hexutil.Decode(seedHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return NewBLSAttestor(seed)
}

// Scheme returns the attestation scheme identifier
func (a *BLSAttestor) Scheme() string {
	return SchemeBLS
}

// PublicKey returns the compressed G2 public key
func (a *BLSAttestor) PublicKey() []byte {
	pk := a.pubkey.Bytes()
	return pk[:]
}

// Attest signs the snapshot's root commitment
func (a *BLSAttestor) Attest(_ context.Context, snapshot *types.Snapshot) (*types.RootAttestation, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot attest nil Snapshot")
	}

	sig, err := a.sign(Message(snapshot.SnapshotID, snapshot.Root()))
	if err != nil {
		return nil, err
	}

	return &types.RootAttestation{
		SnapshotID: snapshot.SnapshotID,
		Scheme:     SchemeBLS,
		Payload:    sig,
		PublicKey:  a.PublicKey(),
	}, nil
}

// sign hashes the message to G1 and multiplies by the private scalar
func (a *BLSAttestor) sign(msg []byte) ([]byte, error) {
	msgPoint, err := bls12381.HashToG1(msg, []byte(blsSignatureDST))
	if err != nil {
		return nil, fmt.Errorf("failed to hash message to G1: %w", err)
	}

	scalarBig := new(big.Int)
	a.scalar.BigInt(scalarBig)

	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&msgPoint, scalarBig)

	sigBytes := sig.Bytes()
	return sigBytes[:], nil
}

// VerifyBLS checks a BLS attestation against the snapshot identity and root
// it claims to cover. The pairing check is
// e(sig, G2Gen) == e(H(msg), pubkey).
func VerifyBLS(att *types.RootAttestation, snapshotID string, root sumtree.Commitment) bool {
	if att == nil || att.Scheme != SchemeBLS {
		return false
	}

	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(att.Payload); err != nil {
		return false
	}

	var pubkey bls12381.G2Affine
	if _, err := pubkey.SetBytes(att.PublicKey); err != nil {
		return false
	}
	if pubkey.IsInfinity() {
		return false
	}

	msgPoint, err := bls12381.HashToG1(Message(snapshotID, root), []byte(blsSignatureDST))
	if err != nil {
		return false
	}

	left, err := bls12381.Pair([]bls12381.G1Affine{sig}, []bls12381.G2Affine{blsG2Generator})
	if err != nil {
		return false
	}
	right, err := bls12381.Pair([]bls12381.G1Affine{msgPoint}, []bls12381.G2Affine{pubkey})
	if err != nil {
		return false
	}

	return left.Equal(&right)
}
