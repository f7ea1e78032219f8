package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/solvency-labs/por-go/pkg/sumtree"
	"github.com/solvency-labs/por-go/pkg/types"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// Client talks to a proof-of-reserves server. Auditors use it to fetch
// roots, proofs, and attestations and to verify balances locally.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig RetryConfig
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryConfig: DefaultRetryConfig,
	}
}

// WithRetryConfig overrides the default retry settings
func (c *Client) WithRetryConfig(cfg RetryConfig) *Client {
	c.retryConfig = cfg
	return c
}

// CreateSnapshot freezes a liabilities set on the server
func (c *Client) CreateSnapshot(ctx context.Context, accounts []types.Account) (*types.CreateSnapshotResponse, error) {
	var resp types.CreateSnapshotResponse
	err := c.postJSON(ctx, "/snapshots", types.CreateSnapshotRequest{Accounts: accounts}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRoot retrieves a snapshot's root commitment. An empty snapshotID
// resolves to the latest published snapshot.
func (c *Client) FetchRoot(ctx context.Context, snapshotID string) (*types.RootResponse, error) {
	path := "/root"
	if snapshotID != "" {
		path += "?snapshot_id=" + url.QueryEscape(snapshotID)
	}

	var resp types.RootResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchProof retrieves an inclusion proof for an account
func (c *Client) FetchProof(ctx context.Context, snapshotID, accountID string) (*types.ProofResponse, error) {
	query := url.Values{}
	if snapshotID != "" {
		query.Set("snapshot_id", snapshotID)
	}
	query.Set("account_id", accountID)

	var resp types.ProofResponse
	if err := c.getJSON(ctx, "/proof?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchProofByPosition retrieves an inclusion proof for a leaf position
func (c *Client) FetchProofByPosition(ctx context.Context, snapshotID string, position int) (*types.ProofResponse, error) {
	query := url.Values{}
	if snapshotID != "" {
		query.Set("snapshot_id", snapshotID)
	}
	query.Set("position", strconv.Itoa(position))

	var resp types.ProofResponse
	if err := c.getJSON(ctx, "/proof?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchAttestation retrieves the custodian's signature over a root
func (c *Client) FetchAttestation(ctx context.Context, snapshotID string) (*types.RootAttestation, error) {
	path := "/attestation"
	if snapshotID != "" {
		path += "?snapshot_id=" + url.QueryEscape(snapshotID)
	}

	var resp types.AttestationResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Attestation, nil
}

// VerifyBalance fetches a proof for the account and verifies it locally
// against a root the caller already trusts. The server is never asked to
// judge its own proof.
func (c *Client) VerifyBalance(ctx context.Context, committer sumtree.Committer, snapshotID, accountID string, balance uint64, trustedRoot sumtree.Commitment) (bool, error) {
	proofResp, err := c.FetchProof(ctx, snapshotID, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch proof: %w", err)
	}
	if proofResp.Proof == nil {
		return false, fmt.Errorf("server returned no proof")
	}

	return proofResp.Proof.Verify(committer, balance, trustedRoot), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doWithRetry(ctx, http.MethodPost, path, data, out)
}

// doWithRetry sends the request, retrying transport errors and 5xx
// responses with exponential backoff. 4xx responses are never retried.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte, out any) error {
	backoff := c.retryConfig.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		retryable, err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return resp.StatusCode >= 500, err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return false, nil
}
