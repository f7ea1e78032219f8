package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvency-labs/por-go/pkg/attestor"
	"github.com/solvency-labs/por-go/pkg/types"
)

func newTestServer(t *testing.T, att attestor.Attestor) (*Server, *Service) {
	t.Helper()
	svc := newTestService(t, att)
	return NewServer(svc, 0, DefaultRateLimit), svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestCreateSnapshotEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.GetHandler()

	var resp types.CreateSnapshotResponse
	w := doJSON(t, handler, http.MethodPost, "/snapshots",
		types.CreateSnapshotRequest{Accounts: testAccounts()}, &resp)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp.SnapshotID)
	assert.Equal(t, uint64(1500), resp.RootAmount)
	assert.Equal(t, 5, resp.AccountCount)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", resp.RootDigest)
}

func TestCreateSnapshotEndpoint_BadRequests(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.GetHandler()

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/snapshots", bytes.NewReader([]byte("not json")))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty accounts", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/snapshots", types.CreateSnapshotRequest{}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodDelete, "/snapshots", nil, nil)
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestRootEndpoints(t *testing.T) {
	server, svc := newTestServer(t, nil)
	handler := server.GetHandler()

	t.Run("no snapshot yet", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/root", nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	snapshot, err := svc.CreateSnapshot(context.Background(), testAccounts())
	require.NoError(t, err)

	t.Run("latest root", func(t *testing.T) {
		var resp types.RootResponse
		w := doJSON(t, handler, http.MethodGet, "/root", nil, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, snapshot.SnapshotID, resp.SnapshotID)
		assert.Equal(t, uint64(1500), resp.RootAmount)
	})

	t.Run("root by query param", func(t *testing.T) {
		var resp types.RootResponse
		w := doJSON(t, handler, http.MethodGet, "/root?snapshot_id="+snapshot.SnapshotID, nil, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, snapshot.SnapshotID, resp.SnapshotID)
	})

	t.Run("root by path", func(t *testing.T) {
		var resp types.RootResponse
		w := doJSON(t, handler, http.MethodGet, "/snapshots/"+snapshot.SnapshotID+"/root", nil, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, snapshot.SnapshotID, resp.SnapshotID)
	})

	t.Run("unknown snapshot", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/snapshots/nope/root", nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed snapshot path", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/snapshots/id/not-root", nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list snapshots", func(t *testing.T) {
		var resp []types.RootResponse
		w := doJSON(t, handler, http.MethodGet, "/snapshots", nil, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, resp, 1)
		assert.Equal(t, snapshot.SnapshotID, resp[0].SnapshotID)
	})
}

func TestProofAndVerifyEndpoints(t *testing.T) {
	server, svc := newTestServer(t, nil)
	handler := server.GetHandler()

	snapshot, err := svc.CreateSnapshot(context.Background(), testAccounts())
	require.NoError(t, err)

	var proofResp types.ProofResponse
	w := doJSON(t, handler, http.MethodGet,
		fmt.Sprintf("/proof?snapshot_id=%s&position=2", snapshot.SnapshotID), nil, &proofResp)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, proofResp.Proof)
	assert.Equal(t, 2, proofResp.Position)
	assert.Equal(t, uint64(300), proofResp.Balance)

	t.Run("proof by account ID matches", func(t *testing.T) {
		var byID types.ProofResponse
		w := doJSON(t, handler, http.MethodGet,
			fmt.Sprintf("/proof?snapshot_id=%s&account_id=carol", snapshot.SnapshotID), nil, &byID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, proofResp.Position, byID.Position)
		assert.Equal(t, proofResp.Balance, byID.Balance)
	})

	t.Run("verify accepts the proof", func(t *testing.T) {
		var resp types.VerifyResponse
		w := doJSON(t, handler, http.MethodPost, "/verify", types.VerifyRequest{
			Proof:      proofResp.Proof,
			LeafAmount: proofResp.Balance,
			RootAmount: snapshot.RootAmount,
			RootDigest: types.EncodeDigest(snapshot.RootDigest),
		}, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Valid)
	})

	t.Run("verify rejects a wrong balance", func(t *testing.T) {
		var resp types.VerifyResponse
		w := doJSON(t, handler, http.MethodPost, "/verify", types.VerifyRequest{
			Proof:      proofResp.Proof,
			LeafAmount: proofResp.Balance + 1,
			RootAmount: snapshot.RootAmount,
			RootDigest: types.EncodeDigest(snapshot.RootDigest),
		}, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, resp.Valid)
	})

	t.Run("verify rejects a malformed digest", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/verify", types.VerifyRequest{
			Proof:      proofResp.Proof,
			LeafAmount: proofResp.Balance,
			RootAmount: snapshot.RootAmount,
			RootDigest: "0x1234",
		}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("verify requires a proof", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/verify", types.VerifyRequest{
			RootDigest: types.EncodeDigest(snapshot.RootDigest),
		}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("proof requires an address", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/proof", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("proof rejects junk position", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/proof?position=junk", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("proof out of range", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet,
			fmt.Sprintf("/proof?snapshot_id=%s&position=99", snapshot.SnapshotID), nil, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAttestationEndpoints(t *testing.T) {
	jwtAtt, err := attestor.NewJWTAttestor(nil, "https://por.example.com")
	require.NoError(t, err)

	server, svc := newTestServer(t, jwtAtt)
	handler := server.GetHandler()

	snapshot, err := svc.CreateSnapshot(context.Background(), testAccounts())
	require.NoError(t, err)

	t.Run("attestation round trip", func(t *testing.T) {
		var resp types.AttestationResponse
		w := doJSON(t, handler, http.MethodGet, "/attestation?snapshot_id="+snapshot.SnapshotID, nil, &resp)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, resp.Attestation)
		assert.Equal(t, attestor.SchemeJWT, resp.Attestation.Scheme)

		err := attestor.VerifyJWT(resp.Attestation.Payload, jwtAtt.PublicJWKS(),
			"https://por.example.com", snapshot.SnapshotID, snapshot.Root())
		require.NoError(t, err)
	})

	t.Run("jwks endpoint serves the signing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "\"keys\"")
	})
}

func TestAttestationEndpoint_Disabled(t *testing.T) {
	server, svc := newTestServer(t, nil)
	handler := server.GetHandler()

	_, err := svc.CreateSnapshot(context.Background(), testAccounts())
	require.NoError(t, err)

	w := doJSON(t, handler, http.MethodGet, "/attestation", nil, nil)
	require.Equal(t, http.StatusNotImplemented, w.Code)

	w = doJSON(t, handler, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.GetHandler()

	w := doJSON(t, handler, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProofEndpoint_RateLimited(t *testing.T) {
	svc := newTestService(t, nil)
	server := NewServer(svc, 0, RateLimit{PerSecond: 1, Burst: 2})
	handler := server.GetHandler()

	snapshot, err := svc.CreateSnapshot(context.Background(), testAccounts())
	require.NoError(t, err)

	path := fmt.Sprintf("/proof?snapshot_id=%s&position=0", snapshot.SnapshotID)

	limited := false
	for i := 0; i < 5; i++ {
		w := doJSON(t, handler, http.MethodGet, path, nil, nil)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.True(t, limited, "burst of requests must trip the limiter")
}
