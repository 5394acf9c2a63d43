package api

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

	"github.com/capiscio/pledge-core/pkg/adminguard"
	"github.com/capiscio/pledge-core/pkg/badge"
	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/capiscio/pledge-core/pkg/pledge"
)

// DefaultServerURL is where the CLI looks for the API by default.
const DefaultServerURL = "http://localhost:8080"

// Client is an HTTP client for the pledge API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Admin signs owner requests. Required only for admin methods.
	Admin *adminguard.Guard

	// Subject is the owner subject placed in admin tokens.
	Subject string
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Pledges lists the catalog.
func (c *Client) Pledges(ctx context.Context) ([]pledge.Pledge, error) {
	var resp PledgesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/pledges", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.Pledges, nil
}

// Pledge fetches one pledge.
func (c *Client) Pledge(ctx context.Context, id uint64) (pledge.Pledge, error) {
	var p pledge.Pledge
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/pledges/%d", id), nil, false, &p)
	return p, err
}

// AddPledge adds a pledge (admin).
func (c *Client) AddPledge(ctx context.Context, uri, content string) (uint64, error) {
	var resp AddPledgeResponse
	err := c.do(ctx, http.MethodPost, "/v1/pledges", AddPledgeRequest{URI: uri, Content: content}, true, &resp)
	return resp.ID, err
}

// Claim submits a signed claim for account.
func (c *Client) Claim(ctx context.Context, id uint64, account crypto.Address, signature []byte) (HolderState, error) {
	var st HolderState
	req := ClaimRequest{Account: account.String(), Signature: crypto.FormatSignature(signature)}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/pledges/%d/claims", id), req, false, &st)
	return st, err
}

// Revoke revokes account's badge (admin).
func (c *Client) Revoke(ctx context.Context, id uint64, account crypto.Address) (HolderState, error) {
	var st HolderState
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/pledges/%d/revocations", id), AccountRequest{Account: account.String()}, true, &st)
	return st, err
}

// Redeem lifts account's revocation lock (admin).
func (c *Client) Redeem(ctx context.Context, id uint64, account crypto.Address) (HolderState, error) {
	var st HolderState
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/pledges/%d/redemptions", id), AccountRequest{Account: account.String()}, true, &st)
	return st, err
}

// HolderState fetches the ledger record for (id, account).
func (c *Client) HolderState(ctx context.Context, id uint64, account crypto.Address) (HolderState, error) {
	var st HolderState
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/pledges/%d/holders/%s", id, account), nil, false, &st)
	return st, err
}

// Holders lists the current holders of id.
func (c *Client) Holders(ctx context.Context, id uint64) ([]crypto.Address, error) {
	var resp HoldersResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/pledges/%d/holders", id), nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.Holders, nil
}

// Events fetches events after since.
func (c *Client) Events(ctx context.Context, since uint64, limit int) (EventsResponse, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp EventsResponse
	err := c.do(ctx, http.MethodGet, "/v1/events?"+q.Encode(), nil, false, &resp)
	return resp, err
}

// do sends a JSON request and decodes the JSON reply into out. Error
// replies come back as *badge.Error so callers can use errors.Is.
func (c *Client) do(ctx context.Context, method, path string, in any, admin bool, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pledge-core/1.0")

	if admin {
		if c.Admin == nil {
			return adminguard.ErrNoSigningKey
		}
		token, err := c.Admin.SignOutbound(c.Subject, body)
		if err != nil {
			return fmt.Errorf("failed to sign admin token: %w", err)
		}
		req.Header.Set(adminguard.HeaderName, token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if err := json.Unmarshal(respBody, &e); err != nil || e.Code == "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return badge.NewError(e.Code, e.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
