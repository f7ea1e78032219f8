package types

import (
	"fmt"

	"github.com/solvency-labs/por-go/pkg/sumtree"
)

// Account is one custodial account balance included in a liabilities
// snapshot. The account ID is an opaque caller-assigned label; it is never
// hashed into the tree, only the balance and its position are.
type Account struct {
	ID      string `json:"id"`
	Balance uint64 `json:"balance"`
}

// Snapshot is one frozen liabilities set together with its published root
// commitment. Account order is the position space for inclusion proofs and
// is fixed at snapshot creation.
type Snapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  int64     `json:"created_at"` // Unix timestamp
	HashScheme string    `json:"hash_scheme"`
	Accounts   []Account `json:"accounts"`
	RootAmount uint64    `json:"root_amount"`
	RootDigest [32]byte  `json:"root_digest"`
}

// Balances extracts the ordered balance list for tree construction.
func (s *Snapshot) Balances() []uint64 {
	balances := make([]uint64, len(s.Accounts))
	for i, account := range s.Accounts {
		balances[i] = account.Balance
	}
	return balances
}

// Root returns the snapshot's root as a sum commitment.
func (s *Snapshot) Root() sumtree.Commitment {
	return sumtree.Commitment{
		Amount: s.RootAmount,
		Digest: s.RootDigest,
	}
}

// PositionOf returns the leaf position for an account ID, or an error if
// the snapshot has no such account.
func (s *Snapshot) PositionOf(accountID string) (int, error) {
	for i, account := range s.Accounts {
		if account.ID == accountID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("account %q not present in snapshot %s", accountID, s.SnapshotID)
}

// RootAttestation is a custodian's signature over a published root, in one
// of the supported schemes. Payload layout depends on the scheme:
// BLS and AWS KMS carry raw signature bytes, JWT carries the compact token.
type RootAttestation struct {
	SnapshotID string `json:"snapshot_id"`
	Scheme     string `json:"scheme"`
	Payload    []byte `json:"payload"`
	// PublicKey is scheme-specific verification material: compressed G2
	// bytes for BLS, the public JWKS JSON for JWT, and the uncompressed
	// secp256k1 key for AWS KMS.
	PublicKey []byte `json:"public_key,omitempty"`
}
