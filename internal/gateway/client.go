package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrGatewayUnavailable wraps every transport or upstream failure so callers
// can map the whole family onto one stable error code.
var ErrGatewayUnavailable = errors.New("gateway: upstream request failed")

const defaultRequestTimeout = 15 * time.Second

// Config holds the credentials and endpoints for the payment gateway
// acceptance API. All fields except Timeout are required.
type Config struct {
	BaseURL       string
	APIKey        string
	IntegrationID string
	IframeID      string
	Timeout       time.Duration
}

// Validate reports missing required credentials.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base_url")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.IntegrationID) == "" {
		missing = append(missing, "integration_id")
	}
	if strings.TrimSpace(c.IframeID) == "" {
		missing = append(missing, "iframe_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway: missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CheckoutSession is the result of a successful three-step checkout
// negotiation with the gateway.
type CheckoutSession struct {
	OrderID       string
	PaymentToken  string
	IframeURL     string
	MerchantOrder string
}

// CheckoutParams describe the order the gateway should register.
type CheckoutParams struct {
	MerchantOrderID string
	AmountCents     int64
	Currency        string
	BillingEmail    string
	BillingName     string
	BillingPhone    string
}

// Client talks to the external payment gateway. It is stateless; an auth
// token is obtained per checkout because gateway tokens are short-lived.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a gateway client with a bounded request timeout.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// CreateCheckout performs the full negotiation: authenticate, register the
// order, request a payment key. Any failing step aborts the sequence and the
// caller persists nothing.
func (c *Client) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("gateway: amount must be positive, got %d", params.AmountCents)
	}

	authToken, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	orderID, err := c.registerOrder(ctx, authToken, params)
	if err != nil {
		return nil, err
	}

	paymentToken, err := c.requestPaymentKey(ctx, authToken, orderID, params)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		OrderID:       orderID,
		PaymentToken:  paymentToken,
		IframeURL:     c.iframeURL(paymentToken),
		MerchantOrder: params.MerchantOrderID,
	}, nil
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type authResponse struct {
	Token string `json:"token"`
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	var resp authResponse
	if err := c.post(ctx, "/auth/tokens", authRequest{APIKey: c.cfg.APIKey}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty auth token", ErrGatewayUnavailable)
	}
	return resp.Token, nil
}

type orderRequest struct {
	AuthToken       string `json:"auth_token"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	MerchantOrderID string `json:"merchant_order_id"`
	DeliveryNeeded  bool   `json:"delivery_needed"`
}

type orderResponse struct {
	ID json.Number `json:"id"`
}

func (c *Client) registerOrder(ctx context.Context, authToken string, params CheckoutParams) (string, error) {
	req := orderRequest{
		AuthToken:       authToken,
		AmountCents:     params.AmountCents,
		Currency:        params.Currency,
		MerchantOrderID: params.MerchantOrderID,
	}

	var resp orderResponse
	if err := c.post(ctx, "/ecommerce/orders", req, &resp); err != nil {
		return "", err
	}
	if resp.ID.String() == "" {
		return "", fmt.Errorf("%w: empty order id", ErrGatewayUnavailable)
	}
	return resp.ID.String(), nil
}

type paymentKeyRequest struct {
	AuthToken     string      `json:"auth_token"`
	AmountCents   int64       `json:"amount_cents"`
	Currency      string      `json:"currency"`
	OrderID       string      `json:"order_id"`
	IntegrationID string      `json:"integration_id"`
	Expiration    int         `json:"expiration"`
	BillingData   billingData `json:"billing_data"`
}

type billingData struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

type paymentKeyResponse struct {
	Token string `json:"token"`
}

func (c *Client) requestPaymentKey(ctx context.Context, authToken, orderID string, params CheckoutParams) (string, error) {
	first, last := splitName(params.BillingName)
	req := paymentKeyRequest{
		AuthToken:     authToken,
		AmountCents:   params.AmountCents,
		Currency:      params.Currency,
		OrderID:       orderID,
		IntegrationID: c.cfg.IntegrationID,
		Expiration:    3600,
		BillingData: billingData{
			Email:       params.BillingEmail,
			FirstName:   first,
			LastName:    last,
			PhoneNumber: params.BillingPhone,
		},
	}

	var resp paymentKeyResponse
	if err := c.post(ctx, "/acceptance/payment_keys", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty payment key", ErrGatewayUnavailable)
	}
	return resp.Token, nil
}

func (c *Client) iframeURL(paymentToken string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s",
		c.cfg.BaseURL, c.cfg.IframeID, url.QueryEscape(paymentToken))
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Bounded read keeps a misbehaving upstream from bloating logs.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrGatewayUnavailable, path, resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrGatewayUnavailable, path, err)
	}
	return nil
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "NA", "NA"
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], "NA"
	}
	return parts[0], parts[1]
}
