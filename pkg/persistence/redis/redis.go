package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solvency-labs/por-go/pkg/persistence"
	"github.com/solvency-labs/por-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixSnapshot    = "por:snapshot:"
	keyLatestSnapshot    = "por:latest:snapshot"
	keyServiceState      = "por:servicestate:main"
	keySchemaVersion     = "por:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetSnapshots = "por:snapshots:index"
)

// RedisPersistence is a production-ready persistence implementation using
// Redis. Suitable for cloud-native deployments where several read replicas
// serve proofs against the same published snapshots.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant
	// setups). If set, it is prepended to all keys, e.g. "acme:" results in
	// keys like "acme:por:snapshot:<id>". If empty, keys use the default
	// "por:" prefix.
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveSnapshot persists a snapshot
func (r *RedisPersistence) SaveSnapshot(snapshot *types.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}
	if snapshot.SnapshotID == "" {
		return fmt.Errorf("cannot save Snapshot with empty ID")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := persistence.MarshalSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal Snapshot: %w", err)
	}

	// Store value and index entry in a pipeline for atomicity
	key := r.prefixKey(keyPrefixSnapshot + snapshot.SnapshotID)
	indexKey := r.prefixKey(keySetSnapshots)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey, snapshot.SnapshotID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save Snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves a snapshot by ID
func (r *RedisPersistence) LoadSnapshot(snapshotID string) (*types.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixSnapshot + snapshotID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Snapshot: %w", err)
	}

	snapshot, err := persistence.UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Snapshot: %w", err)
	}

	return snapshot, nil
}

// ListSnapshots returns all snapshots sorted by creation time
func (r *RedisPersistence) ListSnapshots() ([]*types.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetSnapshots)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot index: %w", err)
	}

	snapshots := make([]*types.Snapshot, 0, len(ids))
	for _, id := range ids {
		key := r.prefixKey(keyPrefixSnapshot + id)

		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Index entry without a value - stale index, skip
			r.logger.Sugar().Warnw("Snapshot in index but not in store, skipping", "snapshot_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load Snapshot %s: %w", id, err)
		}

		snapshot, err := persistence.UnmarshalSnapshot(data)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Snapshot, skipping", "snapshot_id", id, "error", err)
			continue
		}

		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt == snapshots[j].CreatedAt {
			return snapshots[i].SnapshotID < snapshots[j].SnapshotID
		}
		return snapshots[i].CreatedAt < snapshots[j].CreatedAt
	})

	return snapshots, nil
}

// DeleteSnapshot removes a snapshot
func (r *RedisPersistence) DeleteSnapshot(snapshotID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	key := r.prefixKey(keyPrefixSnapshot + snapshotID)
	indexKey := r.prefixKey(keySetSnapshots)

	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, indexKey, snapshotID)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete Snapshot: %w", err)
	}

	return nil
}

// SetLatestSnapshotID stores the published snapshot ID
func (r *RedisPersistence) SetLatestSnapshotID(snapshotID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()
	return r.client.Set(ctx, r.prefixKey(keyLatestSnapshot), snapshotID, 0).Err()
}

// GetLatestSnapshotID retrieves the published snapshot ID
func (r *RedisPersistence) GetLatestSnapshotID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	snapshotID, err := r.client.Get(ctx, r.prefixKey(keyLatestSnapshot)).Result()
	if err == redis.Nil {
		return "", nil // No published snapshot yet
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest snapshot ID: %w", err)
	}

	return snapshotID, nil
}

// SaveServiceState persists service operational state
func (r *RedisPersistence) SaveServiceState(state *persistence.ServiceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ServiceState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := persistence.MarshalServiceState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ServiceState: %w", err)
	}

	return r.client.Set(ctx, r.prefixKey(keyServiceState), data, 0).Err()
}

// LoadServiceState retrieves service operational state
func (r *RedisPersistence) LoadServiceState() (*persistence.ServiceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx := context.Background()

	data, err := r.client.Get(ctx, r.prefixKey(keyServiceState)).Bytes()
	if err == redis.Nil {
		return nil, nil // First run
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ServiceState: %w", err)
	}

	state, err := persistence.UnmarshalServiceState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ServiceState: %w", err)
	}

	return state, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

// Ensure RedisPersistence implements the interface
var _ persistence.ISnapshotPersistence = (*RedisPersistence)(nil)
