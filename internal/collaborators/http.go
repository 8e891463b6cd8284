// Package collaborators provides JSON-over-HTTP adapters for the cart,
// inventory, payment and shipping services. Each request forwards the
// coordinator's step-scoped idempotency key so the remote side can
// deduplicate retried steps.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/commercekit/orderflow/internal/saga"
)

// Client calls one collaborator service.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

func newClient(name, baseURL string, timeout time.Duration) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewCart returns a CartClient for the cart service.
func NewCart(baseURL string, timeout time.Duration) *CartHTTP {
	return &CartHTTP{client: newClient("cart", baseURL, timeout)}
}

// NewInventory returns an InventoryClient for the inventory service.
func NewInventory(baseURL string, timeout time.Duration) *InventoryHTTP {
	return &InventoryHTTP{client: newClient("inventory", baseURL, timeout)}
}

// NewPayment returns a PaymentClient for the payment service.
func NewPayment(baseURL string, timeout time.Duration) *PaymentHTTP {
	return &PaymentHTTP{client: newClient("payment", baseURL, timeout)}
}

// NewShipping returns a ShippingClient for the shipping service.
func NewShipping(baseURL string, timeout time.Duration) *ShippingHTTP {
	return &ShippingHTTP{client: newClient("shipping", baseURL, timeout)}
}

type CartHTTP struct{ client *Client }

func (c *CartHTTP) Validate(ctx context.Context, req saga.ValidateCartRequest) error {
	return c.client.post(ctx, "/cart/validate", req.IdempotencyKey, req, nil)
}

type InventoryHTTP struct{ client *Client }

func (c *InventoryHTTP) Reserve(ctx context.Context, req saga.ReserveRequest) (saga.ReserveResult, error) {
	var res saga.ReserveResult
	err := c.client.post(ctx, "/inventory/reservations", req.IdempotencyKey, req, &res)
	return res, err
}

func (c *InventoryHTTP) Release(ctx context.Context, req saga.ReleaseRequest) error {
	return c.client.post(ctx, "/inventory/releases", req.IdempotencyKey, req, nil)
}

type PaymentHTTP struct{ client *Client }

func (c *PaymentHTTP) Charge(ctx context.Context, req saga.ChargeRequest) (saga.ChargeResult, error) {
	var res saga.ChargeResult
	err := c.client.post(ctx, "/payments/charges", req.IdempotencyKey, req, &res)
	return res, err
}

func (c *PaymentHTTP) Refund(ctx context.Context, req saga.RefundRequest) error {
	return c.client.post(ctx, "/payments/refunds", req.IdempotencyKey, req, nil)
}

type ShippingHTTP struct{ client *Client }

func (c *ShippingHTTP) CreateShipment(ctx context.Context, req saga.ShipmentRequest) (saga.ShipmentResult, error) {
	var res saga.ShipmentResult
	err := c.client.post(ctx, "/shipments", req.IdempotencyKey, req, &res)
	return res, err
}

// post issues the request and decodes the response into out when non-nil.
// Network errors, timeouts and 5xx responses come back as
// *saga.CollaboratorError so the coordinator retries them; 4xx responses
// are business rejections and go straight to compensation.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &saga.CollaboratorError{Collaborator: c.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &saga.CollaboratorError{
			Collaborator: c.name,
			Err:          fmt.Errorf("%s %s: status %d", http.MethodPost, path, resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s rejected %s: status %d: %s", c.name, path, resp.StatusCode, detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name, err)
		}
	}
	return nil
}
