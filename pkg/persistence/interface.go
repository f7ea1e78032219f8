package persistence

import "github.com/solvency-labs/por-go/pkg/types"

// ISnapshotPersistence defines the interface for persisting liabilities
// snapshots and their published commitments across restarts.
// All implementations must be thread-safe as service operations are
// concurrent.
//
// The interface supports:
// - Snapshot management (save, load, list, delete)
// - Latest snapshot tracking (which snapshot is currently published)
// - Service operational state (last publish time, etc.)
// - Lifecycle management (close, health check)
type ISnapshotPersistence interface {
	// Snapshot Management

	// SaveSnapshot persists a snapshot indexed by snapshot ID.
	// Returns error only on storage failure, not if the snapshot already
	// exists (idempotent).
	SaveSnapshot(snapshot *types.Snapshot) error

	// LoadSnapshot retrieves a snapshot by ID.
	// Returns nil if the snapshot doesn't exist, error only on storage failure.
	LoadSnapshot(snapshotID string) (*types.Snapshot, error)

	// ListSnapshots returns all persisted snapshots sorted by creation
	// time (ascending). Returns empty slice if none exist, error only on
	// storage failure.
	ListSnapshots() ([]*types.Snapshot, error)

	// DeleteSnapshot removes a snapshot by ID.
	// Idempotent - returns nil if the snapshot doesn't exist.
	// Returns error only on storage failure.
	DeleteSnapshot(snapshotID string) error

	// Latest Snapshot Tracking

	// SetLatestSnapshotID stores which snapshot is currently published.
	// Setting the empty string indicates no published snapshot.
	SetLatestSnapshotID(snapshotID string) error

	// GetLatestSnapshotID returns the ID of the published snapshot.
	// Returns the empty string if none is set (first run).
	// Returns error only on storage failure.
	GetLatestSnapshotID() (string, error)

	// Service Operational State

	// SaveServiceState persists operational state (last publish time, etc.).
	// Overwrites any existing state.
	SaveServiceState(state *ServiceState) error

	// LoadServiceState retrieves operational state.
	// Returns nil state if none exists (first run), error only on storage failure.
	LoadServiceState() (*ServiceState, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	// Should be called during service startup to fail fast.
	HealthCheck() error
}
