package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capiscio/pledge-core/pkg/crypto"
)

// EligibilityResponse is the body returned by a remote eligibility service.
type EligibilityResponse struct {
	Account  crypto.Address `json:"account"`
	Eligible bool           `json:"eligible"`
}

// HTTPOracle queries a remote eligibility service.
// Endpoint: GET {BaseURL}/v1/eligibility/{account}
type HTTPOracle struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPOracle creates an HTTPOracle with a 10s client timeout.
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// IsEligible implements Oracle. A 404 means the account is not eligible.
func (o *HTTPOracle) IsEligible(ctx context.Context, account crypto.Address) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/eligibility/%s", o.BaseURL, url.PathEscape(account.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch eligibility: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("eligibility service returned status %d", resp.StatusCode)
	}

	var body EligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode eligibility response: %w", err)
	}
	return body.Eligible, nil
}
