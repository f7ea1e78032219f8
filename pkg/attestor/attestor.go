package attestor

import (
	"context"
	"encoding/binary"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// Scheme identifiers for published attestations
const (
	SchemeBLS    = "bls12-381"
	SchemeJWT    = "jwt-es256"
	SchemeAWSKMS = "aws-kms-secp256k1"
)

// messageDomain separates root attestation messages from any other
// signatures produced with the same keys.
const messageDomain = "por/root/v1"

// Attestor signs a snapshot's root commitment so third parties can check
// that the published root originated from the custodian's key.
type Attestor interface {
	// Scheme returns the attestation scheme identifier
	Scheme() string
	// Attest produces a signed attestation over the snapshot's root
	Attest(ctx context.Context, snapshot *types.Snapshot) (*types.RootAttestation, error)
}

// Message builds the canonical byte string that attestors sign: the domain
// tag, the snapshot ID, the root amount in big-endian, and the root digest.
func Message(snapshotID string, root sumtree.Commitment) []byte {
	msg := make([]byte, 0, len(messageDomain)+len(snapshotID)+8+len(root.Digest))
	msg = append(msg, messageDomain...)
	msg = append(msg, snapshotID...)
	msg = binary.BigEndian.AppendUint64(msg, root.Amount)
	msg = append(msg, root.Digest[:]...)
	return msg
}
