package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/solvency-labs/por-go/pkg/sumtree"
)

// CreateSnapshotRequest freezes a new liabilities set on the server.
type CreateSnapshotRequest struct {
	Accounts []Account `json:"accounts"`
}

// CreateSnapshotResponse returns the published commitment for a new snapshot.
type CreateSnapshotResponse struct {
	SnapshotID   string `json:"snapshot_id"`
	CreatedAt    int64  `json:"created_at"`
	HashScheme   string `json:"hash_scheme"`
	AccountCount int    `json:"account_count"`
	RootAmount   uint64 `json:"root_amount"`
	RootDigest   string `json:"root_digest"` // 0x-prefixed hex
}

// RootResponse returns a snapshot's root commitment.
type RootResponse struct {
	SnapshotID string `json:"snapshot_id"`
	RootAmount uint64 `json:"root_amount"`
	RootDigest string `json:"root_digest"` // 0x-prefixed hex
}

// ProofResponse carries an inclusion proof for one leaf position.
type ProofResponse struct {
	SnapshotID string                  `json:"snapshot_id"`
	Position   int                     `json:"position"`
	Balance    uint64                  `json:"balance"`
	Proof      *sumtree.InclusionProof `json:"proof"`
}

// VerifyRequest asks the server to check a proof against a claimed root.
// Verification is pure; clients holding the same root can verify locally
// with identical results.
type VerifyRequest struct {
	Proof      *sumtree.InclusionProof `json:"proof"`
	LeafAmount uint64                  `json:"leaf_amount"`
	RootAmount uint64                  `json:"root_amount"`
	RootDigest string                  `json:"root_digest"` // 0x-prefixed hex
}

// VerifyResponse reports the boolean verification outcome.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// AttestationResponse returns the custodian's signature over a root.
type AttestationResponse struct {
	Attestation *RootAttestation `json:"attestation"`
}

// EncodeDigest renders a digest as 0x-prefixed hex for transport.
func EncodeDigest(digest [32]byte) string {
	return hexutil.Encode(digest[:])
}

// DecodeDigest parses a 0x-prefixed hex digest.
func DecodeDigest(s string) ([32]byte, error) {
	var digest [32]byte
	raw, err := hexutil.Decode(s)
	if err != nil {
		return digest, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != len(digest) {
		return digest, fmt.Errorf("digest must be %d bytes, got %d", len(digest), len(raw))
	}
	copy(digest[:], raw)
	return digest, nil
}
