package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

// SponsorClient fetches the backend fee sponsor's public address and caches
// it for the process lifetime. The address is treated as untrusted input
// until it parses as a well-formed public key.
type SponsorClient struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	cached  solana.PublicKey
	haveHit bool
}

// NewSponsorClient creates a client for the backend callables at baseURL.
func NewSponsorClient(baseURL string) *SponsorClient {
	return &SponsorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sponsorAddressResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
}

// SponsorAddress returns the sponsor's public address, fetching it on first
// use. Failures are not cached; the next call retries.
func (c *SponsorClient) SponsorAddress(ctx context.Context) (solana.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveHit {
		return c.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sponsor/address", nil)
	if err != nil {
		return solana.PublicKey{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to fetch sponsor address: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return solana.PublicKey{}, apperrors.ErrSponsorUnconfigured
	}

	var body sponsorAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to decode sponsor response: %w", err)
	}
	if !body.Success || body.Address == "" {
		return solana.PublicKey{}, apperrors.ErrSponsorUnconfigured
	}

	address, err := solana.PublicKeyFromBase58(body.Address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("sponsor address is malformed: %w", err)
	}

	c.cached = address
	c.haveHit = true
	return address, nil
}

var _ SponsorSource = (*SponsorClient)(nil)
