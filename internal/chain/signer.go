package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSignerFailure indicates the remote custody signer rejected the request,
// was unreachable, or returned a response shape we do not recognize. Callers
// may retry with backoff; the transaction was not submitted.
var ErrSignerFailure = errors.New("remote signer failure")

// Signer returns a signed transaction for addresses whose key material is
// held by an external custody service.
type Signer interface {
	SignTransaction(ctx context.Context, walletRef, txBase64 string) (string, error)
}

const signerCallTimeout = 15 * time.Second

// HTTPSigner talks to the custody signer's per-wallet RPC endpoint.
type HTTPSigner struct {
	baseURL string
	appID   string
	secret  string
	client  *http.Client
}

// NewHTTPSigner builds a signer client for the given service credentials.
func NewHTTPSigner(baseURL, appID, secret string) (*HTTPSigner, error) {
	if baseURL == "" || appID == "" || secret == "" {
		return nil, fmt.Errorf("signer url and credentials are required")
	}
	return &HTTPSigner{
		baseURL: baseURL,
		appID:   appID,
		secret:  secret,
		client:  &http.Client{Timeout: signerCallTimeout},
	}, nil
}

type signRequest struct {
	Method string     `json:"method"`
	Params signParams `json:"params"`
}

type signParams struct {
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding"`
}

// signResponse is the explicit schema for the signer's documented outcomes.
// Anything that does not match one of them is treated as a failure.
type signResponse struct {
	Data *struct {
		SignedTransaction string `json:"signed_transaction"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignTransaction submits the base64 transaction for signing by the wallet's
// custody key and returns the signed transaction, still base64-encoded.
func (s *HTTPSigner) SignTransaction(ctx context.Context, walletRef, txBase64 string) (string, error) {
	if walletRef == "" {
		return "", fmt.Errorf("%w: wallet reference is required", ErrSignerFailure)
	}

	payload, err := json.Marshal(signRequest{
		Method: "signTransaction",
		Params: signParams{Transaction: txBase64, Encoding: "base64"},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/wallets/%s/rpc", s.baseURL, walletRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.appID, s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignerFailure, err)
	}
	defer resp.Body.Close()

	var decoded signResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: undecodable response: %v", ErrSignerFailure, err)
	}

	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s (%s)", ErrSignerFailure, decoded.Error.Message, decoded.Error.Code)
	}
	if resp.StatusCode != http.StatusOK || decoded.Data == nil || decoded.Data.SignedTransaction == "" {
		return "", fmt.Errorf("%w: unrecognized response shape (status %d)", ErrSignerFailure, resp.StatusCode)
	}
	return decoded.Data.SignedTransaction, nil
}
