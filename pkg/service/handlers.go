package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// handleSnapshots serves POST /snapshots (create) and GET /snapshots (list)
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSnapshot(w, r)
	case http.MethodGet:
		s.listSnapshots(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var req types.CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if len(req.Accounts) == 0 {
		http.Error(w, "accounts is required", http.StatusBadRequest)
		return
	}

	snapshot, err := s.service.CreateSnapshot(r.Context(), req.Accounts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create snapshot: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, types.CreateSnapshotResponse{
		SnapshotID:   snapshot.SnapshotID,
		CreatedAt:    snapshot.CreatedAt,
		HashScheme:   snapshot.HashScheme,
		AccountCount: len(snapshot.Accounts),
		RootAmount:   snapshot.RootAmount,
		RootDigest:   types.EncodeDigest(snapshot.RootDigest),
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, _ *http.Request) {
	snapshots, err := s.service.ListSnapshots()
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	responses := make([]types.RootResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		responses = append(responses, types.RootResponse{
			SnapshotID: snapshot.SnapshotID,
			RootAmount: snapshot.RootAmount,
			RootDigest: types.EncodeDigest(snapshot.RootDigest),
		})
	}

	writeJSON(w, responses)
}

// handleSnapshotRoot serves GET /snapshots/{id}/root
func (s *Server) handleSnapshotRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/snapshots/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "root" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.writeRoot(w, parts[0])
}

// handleRoot serves GET /root with an optional snapshot_id query param
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeRoot(w, r.URL.Query().Get("snapshot_id"))
}

func (s *Server) writeRoot(w http.ResponseWriter, snapshotID string) {
	snapshot, err := s.service.Root(snapshotID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, types.RootResponse{
		SnapshotID: snapshot.SnapshotID,
		RootAmount: snapshot.RootAmount,
		RootDigest: types.EncodeDigest(snapshot.RootDigest),
	})
}

// handleProof serves GET /proof. The leaf is addressed by account_id or by
// position; snapshot_id defaults to the latest published snapshot.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	query := r.URL.Query()
	accountID := query.Get("account_id")
	position := -1
	if posStr := query.Get("position"); posStr != "" {
		var err error
		position, err = strconv.Atoi(posStr)
		if err != nil {
			http.Error(w, "position must be an integer", http.StatusBadRequest)
			return
		}
	}

	if accountID == "" && position < 0 {
		http.Error(w, "account_id or position is required", http.StatusBadRequest)
		return
	}

	snapshot, proof, err := s.service.Proof(query.Get("snapshot_id"), accountID, position)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, types.ProofResponse{
		SnapshotID: snapshot.SnapshotID,
		Position:   proof.Position,
		Balance:    snapshot.Accounts[proof.Position].Balance,
		Proof:      proof,
	})
}

// handleVerify serves POST /verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if req.Proof == nil {
		http.Error(w, "proof is required", http.StatusBadRequest)
		return
	}

	rootDigest, err := types.DecodeDigest(req.RootDigest)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid root digest: %v", err), http.StatusBadRequest)
		return
	}

	valid := s.service.VerifyProof(req.Proof, req.LeafAmount, sumtree.Commitment{
		Amount: req.RootAmount,
		Digest: rootDigest,
	})
	writeJSON(w, types.VerifyResponse{Valid: valid})
}

// handleAttestation serves GET /attestation
func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	att, err := s.service.Attestation(r.Context(), r.URL.Query().Get("snapshot_id"))
	if err != nil {
		if s.service.Attestor() == nil {
			http.Error(w, "Attestation disabled", http.StatusNotImplemented)
			return
		}
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, types.AttestationResponse{Attestation: att})
}

// handleJWKS serves the jwt attestor's public key set
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jwksProvider, ok := s.service.Attestor().(jwksSource)
	if !ok {
		http.Error(w, "No JWKS published", http.StatusNotFound)
		return
	}

	writeJSON(w, jwksProvider.PublicJWKS())
}

// handleHealth serves GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.service.HealthCheck(); err != nil {
		http.Error(w, fmt.Sprintf("Unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

// jwksSource is implemented by attestors that publish a JWKS
type jwksSource interface {
	PublicJWKS() jwk.Set
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
