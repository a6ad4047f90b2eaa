package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider provisions wallets through the custody service's REST API.
// The service holds the key material; we only ever see the address and the
// wallet reference used for signing requests.
type HTTPProvider struct {
	baseURL string
	appID   string
	secret  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, appID, secret string) (*HTTPProvider, error) {
	if baseURL == "" || appID == "" {
		return nil, fmt.Errorf("custody provider base URL and app id are required")
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type createWalletRequest struct {
	ChainType string `json:"chain_type"`
}

type createWalletResponse struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// CreateWallet asks the custody service for a new chain wallet.
func (p *HTTPProvider) CreateWallet(ctx context.Context) (Account, error) {
	body, err := json.Marshal(createWalletRequest{ChainType: "solana"})
	if err != nil {
		return Account{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/wallets", bytes.NewReader(body))
	if err != nil {
		return Account{}, err
	}
	req.SetBasicAuth(p.appID, p.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("privy-app-id", p.appID)

	resp, err := p.client.Do(req)
	if err != nil {
		return Account{}, fmt.Errorf("create wallet: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Account{}, fmt.Errorf("read custody response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Account{}, fmt.Errorf("custody service returned %d: %s", resp.StatusCode, payload)
	}

	var out createWalletResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return Account{}, fmt.Errorf("decode custody response: %w", err)
	}
	if out.ID == "" || out.Address == "" {
		return Account{}, fmt.Errorf("custody service returned incomplete wallet")
	}
	return Account{Address: out.Address, SignerRef: out.ID}, nil
}
