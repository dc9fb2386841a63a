// Package gateway wraps the hosted checkout provider. The provider's own
// checkout pages are opaque: this client only creates sessions and exchanges
// a returned session reference for a payment confirmation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	appErrors "github.com/etution/etution-api/pkg/errors"
)

// Session is a created hosted checkout session.
type Session struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"url"`
}

// SessionRequest describes the checkout to create.
type SessionRequest struct {
	ApplicationID string `json:"application_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	PayerEmail    string `json:"payer_email"`
	PayeeEmail    string `json:"payee_email"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

// Confirmation is the gateway's answer when a session reference is
// exchanged after checkout completes.
type Confirmation struct {
	SessionID     string `json:"session_id"`
	ApplicationID string `json:"application_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id"`
	Paid          bool   `json:"paid"`
}

// Client is the contract the payment service depends on.
type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ConfirmSession(ctx context.Context, sessionID string) (*Confirmation, error)
}

// HTTPClient talks to the gateway over its REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient builds a gateway client. httpClient defaults to
// http.DefaultClient.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

type gatewayError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateSession opens a hosted checkout session.
func (c *HTTPClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create checkout request: %w", err)
	}
	c.decorate(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send checkout request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, mapGatewayError(resp.StatusCode, payload)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	return &session, nil
}

// ConfirmSession exchanges a session reference for the confirmation state.
func (c *HTTPClient) ConfirmSession(ctx context.Context, sessionID string) (*Confirmation, error) {
	endpoint := c.baseURL + "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create confirm request: %w", err)
	}
	c.decorate(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send confirm request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read confirm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapGatewayError(resp.StatusCode, payload)
	}

	var confirmation Confirmation
	if err := json.Unmarshal(payload, &confirmation); err != nil {
		return nil, fmt.Errorf("decode confirm response: %w", err)
	}
	return &confirmation, nil
}

func (c *HTTPClient) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func mapGatewayError(status int, payload []byte) error {
	var parsed gatewayError
	_ = json.Unmarshal(payload, &parsed)
	message := parsed.Message
	if message == "" {
		message = parsed.Error
	}
	if message == "" {
		message = fmt.Sprintf("gateway returned status %d", status)
	}
	if status == http.StatusNotFound {
		return appErrors.Clone(appErrors.ErrNotFound, "checkout session not found")
	}
	return appErrors.New("GATEWAY_ERROR", http.StatusBadGateway, message)
}
