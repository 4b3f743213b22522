/*
Package credit is the HTTP client for the external credit/billing service.

PURPOSE:
  Every processed ledger costs one credit from the uploader's wallet.
  The wallet itself (plans, purchases, payment gateway) lives in a
  separate service; this client only checks balances and consumes
  credits, with an idempotency key so retried consumption is charged
  once.

FAILURE MODEL:
  - HTTP 402 maps to ErrInsufficientCredits (a client error: the upload
    layer degrades per-file instead of failing the request).
  - 5xx and transport errors are retried a bounded number of times with
    a short pause; after that the error surfaces as a service failure.

SEE ALSO:
  - api/upload.go: The only caller
*/
package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrInsufficientCredits is returned when the wallet cannot cover the
// requested consumption.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Wallet is the credit service's view of a user's balance.
type Wallet struct {
	UserID    string `json:"user_id"`
	Total     int    `json:"total"`
	Consumed  int    `json:"consumed"`
	Remaining int    `json:"remaining"`
}

// Client calls the credit service. The zero value is not usable; use New.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// retries counts re-attempts after the first try, on 5xx or
	// transport errors only.
	retries    int
	retryPause time.Duration
}

// New creates a client for the credit service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retries:    2,
		retryPause: 200 * time.Millisecond,
	}
}

// GetWallet fetches a user's wallet.
func (c *Client) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/credits", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-Id", userID)

	return c.doWallet(req, nil)
}

// CheckBalance fetches the wallet and fails with ErrInsufficientCredits
// when fewer than required credits remain.
func (c *Client) CheckBalance(ctx context.Context, userID string, required int) (*Wallet, error) {
	wallet, err := c.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.Remaining < required {
		return nil, fmt.Errorf("%w: need %d but only %d available",
			ErrInsufficientCredits, required, wallet.Remaining)
	}
	return wallet, nil
}

type consumeRequest struct {
	UserID         string `json:"user_id"`
	Credits        int    `json:"credits"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Consume charges credits from a user's wallet and returns the wallet
// after the charge. The idempotency key makes retries safe: the service
// charges a given key at most once.
func (c *Client) Consume(ctx context.Context, userID string, credits int, referenceID, idempotencyKey string) (*Wallet, error) {
	body, err := json.Marshal(consumeRequest{
		UserID:         userID,
		Credits:        credits,
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/credits/consume", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doWallet(req, body)
}

// doWallet executes a request expecting a Wallet response, retrying
// transient failures. body is re-supplied on each attempt (GetBody is
// nil for our hand-built requests).
func (c *Client) doWallet(req *http.Request, body []byte) (*Wallet, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.retryPause):
			}
		}
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		wallet, retryable, err := decodeWallet(resp)
		if err == nil {
			return wallet, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("credit service unavailable: %w", lastErr)
}

func decodeWallet(resp *http.Response) (wallet *Wallet, retryable bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var w Wallet
		if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
			return nil, false, fmt.Errorf("malformed wallet response: %w", err)
		}
		return &w, false, nil

	case resp.StatusCode == http.StatusPaymentRequired:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("%w: %s", ErrInsufficientCredits, bytes.TrimSpace(msg))

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("credit service error: status %d", resp.StatusCode)

	default:
		return nil, false, fmt.Errorf("credit service error: status %d", resp.StatusCode)
	}
}
