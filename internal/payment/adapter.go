package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrGatewayUnavailable means the payment gateway is not configured
// server-side. Callers must fall back to cash on delivery.
var ErrGatewayUnavailable = errors.New("payment gateway not configured")

// ErrVerificationRejected means the gateway signature did not check out.
var ErrVerificationRejected = errors.New("payment verification rejected")

// Session is the gateway's short-lived transaction context, opaque to
// this core beyond its create/verify handshake. Amount is in paise, the
// smallest currency unit, as the gateway requires.
type Session struct {
	GatewayOrderID  string `json:"razorpay_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"key_id"`
	InternalOrderID string `json:"internal_order_id"`
}

// SignatureTriple is the gateway's success callback payload, passed
// back verbatim for server-side verification.
type SignatureTriple struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// Adapter wraps the payment gateway bridge's create/verify handshake.
type Adapter interface {
	CreateSession(ctx context.Context, amount decimal.Decimal, orderID string) (*Session, error)
	Verify(ctx context.Context, sig SignatureTriple, internalOrderID string) error
}

// HTTPAdapter talks to the gateway bridge over REST.
type HTTPAdapter struct {
	baseURL   string
	client    *http.Client
	authToken string
}

func NewHTTPAdapter(baseURL, authToken string, client *http.Client) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAdapter{baseURL: strings.TrimRight(baseURL, "/"), client: client, authToken: authToken}
}

type createOrderRequest struct {
	Amount  decimal.Decimal   `json:"amount"`
	OrderID string            `json:"order_id"`
	Notes   map[string]string `json:"notes,omitempty"`
}

// CreateSession asks the bridge to open a gateway order for the amount.
// A 503 from the bridge is the distinguished "unavailable" condition.
func (a *HTTPAdapter) CreateSession(ctx context.Context, amount decimal.Decimal, orderID string) (*Session, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:  amount,
		OrderID: orderID,
		Notes:   map[string]string{"order_id": orderID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	resp, err := a.post(ctx, "/payments/create-order", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrGatewayUnavailable
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode gateway session: %w", err)
	}
	return &sess, nil
}

type verifyRequest struct {
	SignatureTriple
	InternalOrderID string `json:"internal_order_id"`
}

// Verify submits the signature triple for server-side verification.
// A rejection here after a successful gateway charge is critical: money
// may have moved without a confirmed order, so the caller must surface
// it, never swallow it.
func (a *HTTPAdapter) Verify(ctx context.Context, sig SignatureTriple, internalOrderID string) error {
	body, err := json.Marshal(verifyRequest{SignatureTriple: sig, InternalOrderID: internalOrderID})
	if err != nil {
		return fmt.Errorf("failed to encode verification request: %w", err)
	}

	resp, err := a.post(ctx, "/payments/verify", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ErrGatewayUnavailable
	case resp.StatusCode == http.StatusBadRequest:
		return ErrVerificationRejected
	default:
		return fmt.Errorf("payment verification returned status %d", resp.StatusCode)
	}
}

func (a *HTTPAdapter) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request failed: %w", err)
	}
	return resp, nil
}
