package sumtree

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Domain separation tags. Leaves and internal nodes hash over different
// prefixes so a leaf digest can never collide with an internal digest.
const (
	leafTag     byte = 0x00
	internalTag byte = 0x01
)

// HashFunc computes a fixed 32-byte digest over an arbitrary byte string.
// Any collision-resistant 256-bit hash satisfies the contract.
type HashFunc func(data []byte) [32]byte

// Commitment pairs an aggregate amount with a digest binding the subtree
// that produced it. For commitments produced by Combine, Amount is the
// exact sum of the two children's amounts.
//
// Commitments are immutable values; created once during tree construction
// or proof reconstruction and never mutated.
type Commitment struct {
	Amount uint64   `json:"amount"`
	Digest [32]byte `json:"digest"`
}

// Equal compares by full value (amount and digest). Used in tests only;
// proof verification compares amount and digest explicitly.
func (c Commitment) Equal(other Commitment) bool {
	return c.Amount == other.Amount && c.Digest == other.Digest
}

// Committer produces and combines sum commitments. The tree logic is
// written against this interface so the combination rule stays swappable,
// e.g. for a non-cryptographic stub hash in tests.
type Committer interface {
	// Leaf builds the commitment for a single balance:
	// digest = H(leafTag || amount_be8).
	Leaf(amount uint64) Commitment

	// Combine builds the parent of two child commitments:
	// amount = left.amount + right.amount (checked),
	// digest = H(internalTag || left.amount_be8 || left.digest ||
	//            right.amount_be8 || right.digest).
	//
	// Binding both children's amounts and digests into the parent digest
	// is what stops an attacker from substituting a sibling's amount while
	// keeping its digest valid for a different split.
	Combine(left, right Commitment) (Commitment, error)
}

// hashCommitter is the production Committer, parameterized over the hash.
type hashCommitter struct {
	hash HashFunc
}

// NewCommitter creates a Committer backed by the given hash function.
func NewCommitter(hash HashFunc) Committer {
	return &hashCommitter{hash: hash}
}

// NewKeccakCommitter creates the default Committer, hashing with keccak256.
func NewKeccakCommitter() Committer {
	return NewCommitter(func(data []byte) [32]byte {
		return [32]byte(crypto.Keccak256Hash(data))
	})
}

// NewSHA3Committer creates a Committer hashing with SHA3-256.
func NewSHA3Committer() Committer {
	return NewCommitter(func(data []byte) [32]byte {
		return sha3.Sum256(data)
	})
}

func (h *hashCommitter) Leaf(amount uint64) Commitment {
	data := make([]byte, 0, 1+8)
	data = append(data, leafTag)
	data = binary.BigEndian.AppendUint64(data, amount)

	return Commitment{
		Amount: amount,
		Digest: h.hash(data),
	}
}

func (h *hashCommitter) Combine(left, right Commitment) (Commitment, error) {
	sum := left.Amount + right.Amount
	if sum < left.Amount {
		return Commitment{}, fmt.Errorf("combining amounts %d and %d: %w", left.Amount, right.Amount, ErrAmountOverflow)
	}

	// internalTag || left.amount || left.digest || right.amount || right.digest
	data := make([]byte, 0, 1+8+32+8+32)
	data = append(data, internalTag)
	data = binary.BigEndian.AppendUint64(data, left.Amount)
	data = append(data, left.Digest[:]...)
	data = binary.BigEndian.AppendUint64(data, right.Amount)
	data = append(data, right.Digest[:]...)

	return Commitment{
		Amount: sum,
		Digest: h.hash(data),
	}, nil
}
