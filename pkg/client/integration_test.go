package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solvency-labs/por-go/pkg/attestor"
	"github.com/solvency-labs/por-go/pkg/config"
	"github.com/solvency-labs/por-go/pkg/persistence/badger"
	"github.com/solvency-labs/por-go/pkg/service"
	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/testutil"
	"github.com/solvency-labs/por-go/pkg/types"
)

// TestFullAuditFlow runs the complete custodian/auditor exchange over the
// wire: publish a snapshot against durable storage, pin the attested root,
// then prove and verify every account against it.
func TestFullAuditFlow(t *testing.T) {
	store, err := badger.NewBadgerPersistence(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	seed := make([]byte, 32)
	seed[0] = 0x99
	blsAtt, err := attestor.NewBLSAttestor(seed)
	require.NoError(t, err)

	svc, err := service.NewService(store, config.HashSchemeKeccak, blsAtt, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(service.NewServer(svc, 0, service.DefaultRateLimit).GetHandler())
	defer ts.Close()

	c := NewClient(ts.URL).WithRetryConfig(fastRetry())
	ctx := context.Background()

	accounts := testutil.GenerateAccounts(64)
	created, err := c.CreateSnapshot(ctx, accounts)
	require.NoError(t, err)
	require.Equal(t, testutil.TotalBalance(accounts), created.RootAmount)

	// The auditor pins the root only after checking the custodian's
	// signature over it
	att, err := c.FetchAttestation(ctx, created.SnapshotID)
	require.NoError(t, err)

	rootDigest, err := types.DecodeDigest(created.RootDigest)
	require.NoError(t, err)
	trustedRoot := sumtree.Commitment{Amount: created.RootAmount, Digest: rootDigest}
	require.True(t, attestor.VerifyBLS(att, created.SnapshotID, trustedRoot))

	committer := sumtree.NewKeccakCommitter()
	for _, account := range accounts {
		ok, err := c.VerifyBalance(ctx, committer, created.SnapshotID, account.ID, account.Balance, trustedRoot)
		require.NoError(t, err)
		assert.True(t, ok, "account %s must verify against the pinned root", account.ID)
	}

	// A second snapshot does not disturb proofs against the first
	accounts2 := testutil.GenerateAccounts(16)
	created2, err := c.CreateSnapshot(ctx, accounts2)
	require.NoError(t, err)
	require.NotEqual(t, created.SnapshotID, created2.SnapshotID)

	ok, err := c.VerifyBalance(ctx, committer, created.SnapshotID, accounts[0].ID, accounts[0].Balance, trustedRoot)
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err := c.FetchRoot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, created2.SnapshotID, latest.SnapshotID)
}
