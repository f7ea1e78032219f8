package attestor

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// JWT claim names used in root attestation tokens
const (
	claimSnapshotID = "snapshot_id"
	claimRootDigest = "root_digest"
	claimRootAmount = "root_amount"

	// TokenAudience identifies the intended consumers of attestation tokens
	TokenAudience = "por-verifiers"
)

// JWTAttestor publishes root commitments as ES256-signed JWTs. Verifiers
// fetch the public key from the service's JWKS endpoint.
type JWTAttestor struct {
	signingKey jwk.Key
	publicSet  jwk.Set
	issuer     string
}

// NewJWTAttestor creates an attestor signing with the given P-256 key.
// If key is nil a fresh one is generated.
func NewJWTAttestor(key *ecdsa.PrivateKey, issuer string) (*JWTAttestor, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer cannot be empty")
	}

	if key == nil {
		var err error
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}

	signingKey, err := jwk.Import(key)
	if err != nil {
		return nil, fmt.Errorf("failed to import signing key: %w", err)
	}

	// Key ID derived from the public key so it is stable across restarts
	keyID := deriveKeyID(&key.PublicKey)
	if err := signingKey.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := signingKey.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	publicKey, err := jwk.Import(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to import public key: %w", err)
	}
	if err := publicKey.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set public key ID: %w", err)
	}
	if err := publicKey.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, fmt.Errorf("failed to set public key algorithm: %w", err)
	}
	if err := publicKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set public key usage: %w", err)
	}

	publicSet := jwk.NewSet()
	if err := publicSet.AddKey(publicKey); err != nil {
		return nil, fmt.Errorf("failed to build public key set: %w", err)
	}

	return &JWTAttestor{
		signingKey: signingKey,
		publicSet:  publicSet,
		issuer:     issuer,
	}, nil
}

// NewJWTAttestorFromHex derives a deterministic P-256 signing key from a
// hex-encoded 32-byte seed, so the key and its JWKS survive restarts.
func NewJWTAttestorFromHex(seedHex string, issuer string) (*JWTAttestor, error) {
	seed, err := hexutil.Decode(seedHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes, got %d", len(seed))
	}

	curve := elliptic.P256()
	// Map the seed into [1, N-1]
	d := new(big.Int).SetBytes(seed[:32])
	nMinusOne := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d.Mod(d, nMinusOne)
	d.Add(d, big.NewInt(1))

	key := new(ecdsa.PrivateKey)
	key.Curve = curve
	key.D = d
	key.X, key.Y = curve.ScalarBaseMult(d.Bytes())

	return NewJWTAttestor(key, issuer)
}

func deriveKeyID(pub *ecdsa.PublicKey) string {
	sum := sha256.Sum256(elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y))
	return hex.EncodeToString(sum[:8])
}

// Scheme returns the attestation scheme identifier
func (a *JWTAttestor) Scheme() string {
	return SchemeJWT
}

// PublicJWKS returns the public key set served at the JWKS endpoint
func (a *JWTAttestor) PublicJWKS() jwk.Set {
	return a.publicSet
}

// Attest issues a signed token over the snapshot's root commitment
func (a *JWTAttestor) Attest(_ context.Context, snapshot *types.Snapshot) (*types.RootAttestation, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot attest nil Snapshot")
	}

	root := snapshot.Root()
	token, err := jwt.NewBuilder().
		Issuer(a.issuer).
		Audience([]string{TokenAudience}).
		IssuedAt(time.Now()).
		Claim(claimSnapshotID, snapshot.SnapshotID).
		Claim(claimRootDigest, types.EncodeDigest(root.Digest)).
		Claim(claimRootAmount, strconv.FormatUint(root.Amount, 10)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), a.signingKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign attestation token: %w", err)
	}

	jwksJSON, err := json.Marshal(a.publicSet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key set: %w", err)
	}

	return &types.RootAttestation{
		SnapshotID: snapshot.SnapshotID,
		Scheme:     SchemeJWT,
		Payload:    signed,
		PublicKey:  jwksJSON,
	}, nil
}

// VerifyJWT parses and verifies an attestation token against a key set and
// checks that its claims match the expected snapshot identity and root.
func VerifyJWT(payload []byte, keySet jwk.Set, issuer string, snapshotID string, root sumtree.Commitment) error {
	token, err := jwt.Parse(
		payload,
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
	)
	if err != nil {
		return fmt.Errorf("token parsing/verification failed: %w", err)
	}

	tokenIssuer, ok := token.Issuer()
	if !ok {
		return fmt.Errorf("issuer claim not found in token")
	}
	if tokenIssuer != issuer {
		return fmt.Errorf("invalid issuer: expected %s, got %s", issuer, tokenIssuer)
	}

	audiences, ok := token.Audience()
	if !ok {
		return fmt.Errorf("audience claim not found in token")
	}
	if len(audiences) != 1 || audiences[0] != TokenAudience {
		return fmt.Errorf("invalid audience: expected %s", TokenAudience)
	}

	var tokenSnapshotID string
	if err := token.Get(claimSnapshotID, &tokenSnapshotID); err != nil {
		return fmt.Errorf("snapshot_id claim not found in token: %w", err)
	}
	if tokenSnapshotID != snapshotID {
		return fmt.Errorf("snapshot mismatch: expected %s, got %s", snapshotID, tokenSnapshotID)
	}

	var tokenDigest string
	if err := token.Get(claimRootDigest, &tokenDigest); err != nil {
		return fmt.Errorf("root_digest claim not found in token: %w", err)
	}
	if tokenDigest != types.EncodeDigest(root.Digest) {
		return fmt.Errorf("root digest mismatch")
	}

	// Amounts travel as decimal strings: JSON numbers lose precision
	// above 2^53.
	var tokenAmount string
	if err := token.Get(claimRootAmount, &tokenAmount); err != nil {
		return fmt.Errorf("root_amount claim not found in token: %w", err)
	}
	amount, err := strconv.ParseUint(tokenAmount, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed root_amount claim: %w", err)
	}
	if amount != root.Amount {
		return fmt.Errorf("root amount mismatch: expected %d, got %d", root.Amount, amount)
	}

	return nil
}

// NewJWKCache builds a self-refreshing key set backed by a remote JWKS URL.
// Verifiers point it at the service's /.well-known/jwks.json endpoint.
func NewJWKCache(ctx context.Context, jwkURL string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	err = cache.Register(ctx, jwkURL, jwk.WithConstantInterval(refreshInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	// fetch once on startup so a bad URL fails fast
	_, err = cache.Refresh(ctx, jwkURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch on startup: %w", err)
	}

	return cache.CachedSet(jwkURL)
}
