package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solvency-labs/por-go/pkg/persistence"
	"github.com/solvency-labs/por-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of ISnapshotPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Snapshot storage: snapshotID -> Snapshot
	snapshots map[string]*types.Snapshot

	// Latest published snapshot
	latestSnapshotID string

	// Service state
	serviceState *persistence.ServiceState

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		snapshots: make(map[string]*types.Snapshot),
	}
}

// SaveSnapshot persists a snapshot.
func (m *MemoryPersistence) SaveSnapshot(snapshot *types.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}
	if snapshot.SnapshotID == "" {
		return fmt.Errorf("cannot save Snapshot with empty ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Deep copy to prevent external mutation
	m.snapshots[snapshot.SnapshotID] = deepCopySnapshot(snapshot)

	return nil
}

// LoadSnapshot retrieves a snapshot by ID.
func (m *MemoryPersistence) LoadSnapshot(snapshotID string) (*types.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	snapshot, exists := m.snapshots[snapshotID]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return deepCopySnapshot(snapshot), nil
}

// ListSnapshots returns all snapshots sorted by creation time.
func (m *MemoryPersistence) ListSnapshots() ([]*types.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*types.Snapshot, 0, len(m.snapshots))
	for _, snapshot := range m.snapshots {
		result = append(result, deepCopySnapshot(snapshot))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt == result[j].CreatedAt {
			return result[i].SnapshotID < result[j].SnapshotID
		}
		return result[i].CreatedAt < result[j].CreatedAt
	})

	return result, nil
}

// DeleteSnapshot removes a snapshot.
func (m *MemoryPersistence) DeleteSnapshot(snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.snapshots, snapshotID)
	return nil
}

// SetLatestSnapshotID stores the published snapshot ID.
func (m *MemoryPersistence) SetLatestSnapshotID(snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.latestSnapshotID = snapshotID
	return nil
}

// GetLatestSnapshotID retrieves the published snapshot ID.
func (m *MemoryPersistence) GetLatestSnapshotID() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", fmt.Errorf("persistence layer is closed")
	}

	return m.latestSnapshotID, nil
}

// SaveServiceState persists service operational state.
func (m *MemoryPersistence) SaveServiceState(state *persistence.ServiceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ServiceState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	stateCopy := *state
	m.serviceState = &stateCopy
	return nil
}

// LoadServiceState retrieves service operational state.
func (m *MemoryPersistence) LoadServiceState() (*persistence.ServiceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	if m.serviceState == nil {
		return nil, nil // First run
	}

	stateCopy := *m.serviceState
	return &stateCopy, nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}

// deepCopySnapshot copies a snapshot including its account slice.
func deepCopySnapshot(snapshot *types.Snapshot) *types.Snapshot {
	snapshotCopy := *snapshot
	snapshotCopy.Accounts = make([]types.Account, len(snapshot.Accounts))
	copy(snapshotCopy.Accounts, snapshot.Accounts)
	return &snapshotCopy
}

// Ensure MemoryPersistence implements the interface
var _ persistence.ISnapshotPersistence = (*MemoryPersistence)(nil)
