package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solvency-labs/por-go/pkg/attestor"
	"github.com/solvency-labs/por-go/pkg/config"
	"github.com/solvency-labs/por-go/pkg/persistence"
	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// Service builds liabilities snapshots, publishes their root commitments,
// and serves inclusion proofs against them. Trees are rebuilt on demand
// from persisted snapshots and cached; a rebuilt root that disagrees with
// the stored one means the stored balances were tampered with, and the
// snapshot is refused.
type Service struct {
	logger     *zap.Logger
	store      persistence.ISnapshotPersistence
	hashScheme config.HashScheme
	committer  sumtree.Committer
	attestor   attestor.Attestor // nil when attestation is disabled

	mu           sync.RWMutex
	trees        map[string]*sumtree.MerkleSumTree
	attestations map[string]*types.RootAttestation
}

// NewService creates a service. att may be nil to disable root attestation.
func NewService(store persistence.ISnapshotPersistence, hashScheme config.HashScheme, att attestor.Attestor, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("persistence cannot be nil")
	}

	committer, err := CommitterFor(hashScheme)
	if err != nil {
		return nil, err
	}

	return &Service{
		logger:       logger,
		store:        store,
		hashScheme:   hashScheme,
		committer:    committer,
		attestor:     att,
		trees:        make(map[string]*sumtree.MerkleSumTree),
		attestations: make(map[string]*types.RootAttestation),
	}, nil
}

// CommitterFor maps a configured hash scheme to a committer
func CommitterFor(scheme config.HashScheme) (sumtree.Committer, error) {
	switch scheme {
	case config.HashSchemeKeccak:
		return sumtree.NewKeccakCommitter(), nil
	case config.HashSchemeSHA3:
		return sumtree.NewSHA3Committer(), nil
	default:
		return nil, fmt.Errorf("unsupported hash scheme: %s", scheme)
	}
}

// CreateSnapshot freezes a liabilities set, builds its tree, persists the
// snapshot, and marks it as the latest published one.
func (s *Service) CreateSnapshot(ctx context.Context, accounts []types.Account) (*types.Snapshot, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("accounts cannot be empty: %w", sumtree.ErrEmptyBalances)
	}

	seen := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		if account.ID == "" {
			return nil, fmt.Errorf("account ID cannot be empty")
		}
		if _, dup := seen[account.ID]; dup {
			return nil, fmt.Errorf("duplicate account ID: %s", account.ID)
		}
		seen[account.ID] = struct{}{}
	}

	balances := make([]uint64, len(accounts))
	for i, account := range accounts {
		balances[i] = account.Balance
	}

	tree, err := sumtree.NewMerkleSumTree(s.committer, balances)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	root, err := tree.Root()
	if err != nil {
		return nil, fmt.Errorf("failed to compute root: %w", err)
	}

	snapshot := &types.Snapshot{
		SnapshotID: uuid.New().String(),
		CreatedAt:  time.Now().Unix(),
		HashScheme: s.hashScheme.String(),
		Accounts:   append([]types.Account(nil), accounts...),
		RootAmount: root.Amount,
		RootDigest: root.Digest,
	}

	if err := s.store.SaveSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	if err := s.store.SetLatestSnapshotID(snapshot.SnapshotID); err != nil {
		return nil, fmt.Errorf("failed to publish snapshot: %w", err)
	}

	s.recordPublishTime()

	s.mu.Lock()
	s.trees[snapshot.SnapshotID] = tree
	s.mu.Unlock()

	s.logger.Sugar().Infow("Published snapshot",
		"snapshot_id", snapshot.SnapshotID,
		"accounts", len(accounts),
		"root_amount", root.Amount,
		"root_digest", types.EncodeDigest(root.Digest))

	return snapshot, nil
}

func (s *Service) recordPublishTime() {
	state, err := s.store.LoadServiceState()
	if err != nil || state == nil {
		state = &persistence.ServiceState{ServiceStartTime: time.Now().Unix()}
	}
	state.LastPublishTime = time.Now().Unix()
	if err := s.store.SaveServiceState(state); err != nil {
		s.logger.Sugar().Warnw("Failed to record publish time", "error", err)
	}
}

// Snapshot resolves a snapshot by ID. An empty ID resolves to the latest
// published snapshot.
func (s *Service) Snapshot(snapshotID string) (*types.Snapshot, error) {
	if snapshotID == "" {
		latest, err := s.store.GetLatestSnapshotID()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve latest snapshot: %w", err)
		}
		if latest == "" {
			return nil, fmt.Errorf("no snapshot published yet")
		}
		snapshotID = latest
	}

	snapshot, err := s.store.LoadSnapshot(snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot %s not found", snapshotID)
	}

	return snapshot, nil
}

// ListSnapshots returns all persisted snapshots ordered by creation time
func (s *Service) ListSnapshots() ([]*types.Snapshot, error) {
	return s.store.ListSnapshots()
}

// Root returns the root commitment for a snapshot (empty ID = latest)
func (s *Service) Root(snapshotID string) (*types.Snapshot, error) {
	return s.Snapshot(snapshotID)
}

// Proof generates an inclusion proof for one account in a snapshot. The
// account is addressed either by ID or, with accountID empty, by position.
func (s *Service) Proof(snapshotID string, accountID string, position int) (*types.Snapshot, *sumtree.InclusionProof, error) {
	snapshot, err := s.Snapshot(snapshotID)
	if err != nil {
		return nil, nil, err
	}

	if accountID != "" {
		position, err = snapshot.PositionOf(accountID)
		if err != nil {
			return nil, nil, err
		}
	}

	tree, err := s.treeFor(snapshot)
	if err != nil {
		return nil, nil, err
	}

	proof, err := tree.Prove(position)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate proof: %w", err)
	}

	return snapshot, proof, nil
}

// VerifyProof checks a proof against a claimed root. Verification is pure:
// it touches no stored state, so clients holding the same root get
// identical results locally.
func (s *Service) VerifyProof(proof *sumtree.InclusionProof, leafAmount uint64, claimedRoot sumtree.Commitment) bool {
	return proof.Verify(s.committer, leafAmount, claimedRoot)
}

// Attestation returns the custodian's signature over a snapshot's root,
// producing and caching it on first request. Returns an error when
// attestation is disabled.
func (s *Service) Attestation(ctx context.Context, snapshotID string) (*types.RootAttestation, error) {
	if s.attestor == nil {
		return nil, fmt.Errorf("root attestation is disabled")
	}

	snapshot, err := s.Snapshot(snapshotID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.attestations[snapshot.SnapshotID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	att, err := s.attestor.Attest(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to attest snapshot %s: %w", snapshot.SnapshotID, err)
	}

	s.mu.Lock()
	s.attestations[snapshot.SnapshotID] = att
	s.mu.Unlock()

	return att, nil
}

// Attestor exposes the configured attestor (nil when disabled)
func (s *Service) Attestor() attestor.Attestor {
	return s.attestor
}

// HealthCheck reports whether the storage backend is reachable
func (s *Service) HealthCheck() error {
	return s.store.HealthCheck()
}

// treeFor returns the cached tree for a snapshot, rebuilding it from the
// stored balances when absent. The rebuilt root must match the stored one.
func (s *Service) treeFor(snapshot *types.Snapshot) (*sumtree.MerkleSumTree, error) {
	s.mu.RLock()
	tree, ok := s.trees[snapshot.SnapshotID]
	s.mu.RUnlock()
	if ok {
		return tree, nil
	}

	committer, err := CommitterFor(config.HashScheme(snapshot.HashScheme))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s uses an %w", snapshot.SnapshotID, err)
	}

	tree, err = sumtree.NewMerkleSumTree(committer, snapshot.Balances())
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild tree for snapshot %s: %w", snapshot.SnapshotID, err)
	}

	root, err := tree.Root()
	if err != nil {
		return nil, fmt.Errorf("failed to compute root for snapshot %s: %w", snapshot.SnapshotID, err)
	}

	if !root.Equal(snapshot.Root()) {
		return nil, fmt.Errorf("stored snapshot %s does not reproduce its published root", snapshot.SnapshotID)
	}

	s.mu.Lock()
	s.trees[snapshot.SnapshotID] = tree
	s.mu.Unlock()

	return tree, nil
}
