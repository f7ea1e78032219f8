package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvency-labs/por-go/pkg/logger"
	"github.com/solvency-labs/por-go/pkg/persistence"
	"github.com/solvency-labs/por-go/pkg/types"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not available
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address: getTestRedisAddress(),
		DB:      15, // Use DB 15 for tests to avoid conflicts
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	return rp
}

func testSnapshot(id string) *types.Snapshot {
	return &types.Snapshot{
		SnapshotID: id,
		CreatedAt:  time.Now().Unix(),
		HashScheme: "keccak256",
		Accounts: []types.Account{
			{ID: "alice", Balance: 100},
			{ID: "bob", Balance: 250},
		},
		RootAmount: 350,
		RootDigest: [32]byte{0xaa, 0xbb},
	}
}

func TestRedisPersistence_SaveAndLoadSnapshot(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	snapshot := testSnapshot(fmt.Sprintf("redis-test-%d", time.Now().UnixNano()))

	err := rp.SaveSnapshot(snapshot)
	require.NoError(t, err)

	loaded, err := rp.LoadSnapshot(snapshot.SnapshotID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snapshot.SnapshotID, loaded.SnapshotID)
	assert.Equal(t, snapshot.RootAmount, loaded.RootAmount)
	assert.Equal(t, snapshot.RootDigest, loaded.RootDigest)
	assert.Equal(t, snapshot.Accounts, loaded.Accounts)

	// Cleanup
	_ = rp.DeleteSnapshot(snapshot.SnapshotID)
}

func TestRedisPersistence_LoadSnapshot_NotFound(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	loaded, err := rp.LoadSnapshot("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisPersistence_SaveSnapshot_Nil(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	err := rp.SaveSnapshot(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil Snapshot")
}

func TestRedisPersistence_SaveSnapshot_EmptyID(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	err := rp.SaveSnapshot(&types.Snapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ID")
}

func TestRedisPersistence_DeleteSnapshot(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	snapshot := testSnapshot(fmt.Sprintf("redis-delete-%d", time.Now().UnixNano()))
	err := rp.SaveSnapshot(snapshot)
	require.NoError(t, err)

	err = rp.DeleteSnapshot(snapshot.SnapshotID)
	require.NoError(t, err)

	loaded, err := rp.LoadSnapshot(snapshot.SnapshotID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisPersistence_ListSnapshots(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	base := time.Now().UnixNano()
	ids := []string{
		fmt.Sprintf("redis-list-%d-a", base),
		fmt.Sprintf("redis-list-%d-b", base),
	}
	for i, id := range ids {
		snapshot := testSnapshot(id)
		snapshot.CreatedAt = base + int64(i)
		require.NoError(t, rp.SaveSnapshot(snapshot))
	}
	defer func() {
		for _, id := range ids {
			_ = rp.DeleteSnapshot(id)
		}
	}()

	snapshots, err := rp.ListSnapshots()
	require.NoError(t, err)

	// Other tests may have left snapshots behind; only check ours are
	// present and ordered by creation time.
	positions := make(map[string]int)
	for i, s := range snapshots {
		positions[s.SnapshotID] = i
	}
	for _, id := range ids {
		_, found := positions[id]
		require.True(t, found, "snapshot %s missing from list", id)
	}
	assert.Less(t, positions[ids[0]], positions[ids[1]])
}

func TestRedisPersistence_LatestSnapshotID(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	id := fmt.Sprintf("redis-latest-%d", time.Now().UnixNano())

	err := rp.SetLatestSnapshotID(id)
	require.NoError(t, err)

	latest, err := rp.GetLatestSnapshotID()
	require.NoError(t, err)
	assert.Equal(t, id, latest)
}

func TestRedisPersistence_ServiceState(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	state := &persistence.ServiceState{
		LastPublishTime:  time.Now().Unix(),
		ServiceStartTime: time.Now().Unix() - 3600,
		CustodianLabel:   "test-custodian",
	}

	err := rp.SaveServiceState(state)
	require.NoError(t, err)

	loaded, err := rp.LoadServiceState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.LastPublishTime, loaded.LastPublishTime)
	assert.Equal(t, state.CustodianLabel, loaded.CustodianLabel)
}

func TestRedisPersistence_HealthCheck(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	err := rp.HealthCheck()
	require.NoError(t, err)
}

func TestRedisPersistence_ClosedOperationsFail(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.Close())

	err := rp.SaveSnapshot(testSnapshot("after-close"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	_, err = rp.LoadSnapshot("after-close")
	require.Error(t, err)

	err = rp.HealthCheck()
	require.Error(t, err)

	// Close is idempotent
	require.NoError(t, rp.Close())
}

func TestRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}
