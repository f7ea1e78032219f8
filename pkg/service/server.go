package service

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// Server exposes the service over HTTP.
//
// Endpoints:
//
//	POST /snapshots               freeze a liabilities set, publish its root
//	GET  /snapshots               list published snapshots
//	GET  /snapshots/{id}/root     root commitment for one snapshot
//	GET  /root                    root commitment (?snapshot_id=, default latest)
//	GET  /proof                   inclusion proof (?snapshot_id=&account_id= or &position=)
//	POST /verify                  check a proof against a claimed root
//	GET  /attestation             custodian signature over a root (?snapshot_id=)
//	GET  /.well-known/jwks.json   public keys for jwt attestations
//	GET  /healthz                 storage backend health
//
// Proof generation walks the whole tree, so /proof and /snapshots are
// guarded by a token-bucket limiter; the cheap read endpoints are not.
type Server struct {
	service    *Service
	httpServer *http.Server
	limiter    *rate.Limiter
}

// RateLimit bounds expensive endpoints (requests per second and burst)
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// DefaultRateLimit allows 50 proof generations per second with small bursts
var DefaultRateLimit = RateLimit{PerSecond: 50, Burst: 100}

// NewServer creates a new server instance
func NewServer(service *Service, port int, limit RateLimit) *Server {
	s := &Server{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(limit.PerSecond), limit.Burst),
	}

	mux := http.NewServeMux()

	// Snapshot lifecycle
	mux.HandleFunc("/snapshots", s.handleSnapshots)
	mux.HandleFunc("/snapshots/", s.handleSnapshotRoot)

	// Commitment and proof endpoints
	mux.HandleFunc("/root", s.handleRoot)
	mux.HandleFunc("/proof", s.handleProof)
	mux.HandleFunc("/verify", s.handleVerify)

	// Attestation endpoints
	mux.HandleFunc("/attestation", s.handleAttestation)
	mux.HandleFunc("/.well-known/jwks.json", s.handleJWKS)

	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.service.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.service.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
