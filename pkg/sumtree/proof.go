package sumtree

import "fmt"

// PathEntry is one level of an inclusion proof: the sibling subtree's
// commitment and the side the prover's running commitment was on.
type PathEntry struct {
	Sibling   Commitment `json:"sibling"`
	Direction Direction  `json:"direction"`
}

// InclusionProof proves that a specific leaf balance was included in a root
// commitment, without revealing the other leaves. It is self-contained:
// verification needs no reference to the tree that produced it.
//
// Path is ordered from the leaf's immediate sibling up to the sibling just
// below the root, one entry per tree level on the leaf-to-root path.
type InclusionProof struct {
	Position int         `json:"position"`
	Path     []PathEntry `json:"path"`
}

// ReconstructRoot replays the combination rule from a claimed leaf amount
// up the recorded path and returns the resulting root commitment.
func (p *InclusionProof) ReconstructRoot(committer Committer, leafAmount uint64) (Commitment, error) {
	if committer == nil {
		return Commitment{}, fmt.Errorf("committer cannot be nil")
	}

	running := committer.Leaf(leafAmount)

	for i, entry := range p.Path {
		var (
			combined Commitment
			err      error
		)
		switch entry.Direction {
		case DirectionLeft:
			combined, err = committer.Combine(running, entry.Sibling)
		case DirectionRight:
			combined, err = committer.Combine(entry.Sibling, running)
		default:
			return Commitment{}, fmt.Errorf("path entry %d has invalid direction %d", i, entry.Direction)
		}
		if err != nil {
			return Commitment{}, fmt.Errorf("failed to recombine path entry %d: %w", i, err)
		}
		running = combined
	}

	return running, nil
}

// Verify reconstructs the root from the claimed leaf amount and compares it
// to claimedRoot by amount and digest. Returns false on any mismatch,
// including proofs with missing or extra path entries and paths whose
// recombination overflows. Verify never panics and has no side effects, so
// it is safe to run concurrently by any number of verifiers.
func (p *InclusionProof) Verify(committer Committer, leafAmount uint64, claimedRoot Commitment) bool {
	if p == nil || committer == nil {
		return false
	}

	reconstructed, err := p.ReconstructRoot(committer, leafAmount)
	if err != nil {
		return false
	}

	return reconstructed.Amount == claimedRoot.Amount && reconstructed.Digest == claimedRoot.Digest
}
