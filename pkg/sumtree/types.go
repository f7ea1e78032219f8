package sumtree

import "errors"

// Sentinel errors for the recoverable failure conditions of tree
// construction and proof generation. Verification failure is not an error,
// it is a false return from Verify.
var (
	// ErrEmptyBalances is returned when building a tree from zero balances.
	ErrEmptyBalances = errors.New("cannot build merkle sum tree from empty balance list")

	// ErrPositionOutOfRange is returned when a proof is requested for a
	// leaf position the tree does not have.
	ErrPositionOutOfRange = errors.New("leaf position out of range")

	// ErrAmountOverflow is returned when combining two commitments whose
	// amounts do not fit in uint64. Overflow is never silently wrapped,
	// since a wrapped sum would forge the sum-conservation invariant.
	ErrAmountOverflow = errors.New("combined amount overflows uint64")
)

// Direction records which side the prover's running commitment sits on
// relative to the sibling stored at the same path level. It determines hash
// argument order when the combination rule is replayed during verification.
type Direction int

const (
	// DirectionLeft means the running commitment is the left child and the
	// recorded sibling is the right child.
	DirectionLeft Direction = iota

	// DirectionRight means the running commitment is the right child and
	// the recorded sibling is the left child.
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "unknown"
	}
}
