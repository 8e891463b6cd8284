// Package service composes the idempotency guard, the order aggregate
// and the saga coordinator into the order-creation facade.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/commercekit/orderflow/internal/idempotency"
	"github.com/commercekit/orderflow/internal/orders"
	"github.com/commercekit/orderflow/internal/validation"
)

// ErrIdempotencyInProgress indicates the same key is mid-flight in
// another request. The caller should retry later instead of racing a
// second coordinator.
var ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")

// ErrIdempotencyExpired indicates the key completed so long ago that its
// response snapshot has passed the retention window. A replay is no
// longer possible; the client must mint a new key.
var ErrIdempotencyExpired = errors.New("idempotency key expired")

// TokenStore is the slice of the idempotency store the facade uses.
type TokenStore interface {
	Get(ctx context.Context, tenantID, token string) (*idempotency.Token, error)
	Put(ctx context.Context, tenantID, token, userID, requestHash string) (*idempotency.Token, error)
	MarkCompleted(ctx context.Context, tenantID, token, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, tenantID, token, note string) error
}

// Guard bounds attempts and detects content duplicates.
type Guard interface {
	CheckRateLimit(ctx context.Context, tenantID, userID string) error
	CheckContentDuplicate(ctx context.Context, tenantID, userID, requestHash, currentToken string) error
}

// OrderStore persists orders with their history.
type OrderStore interface {
	Create(ctx context.Context, o *orders.Order, created orders.HistoryEntry) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	History(ctx context.Context, orderID string) ([]orders.HistoryEntry, error)
}

// SagaRunner drives the multi-step order materialization.
type SagaRunner interface {
	Run(ctx context.Context, order *orders.Order) error
}

// CreateOrderResponse is what the caller gets back and what the token
// snapshot stores. Replays return it verbatim.
type CreateOrderResponse struct {
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	Status      orders.Status `json:"status"`
	TotalCents  int64         `json:"total_cents"`
	Currency    string        `json:"currency"`

	Replayed bool `json:"-"` // true when served from a stored snapshot
}

// Service is the order-creation facade.
type Service struct {
	log     *slog.Logger
	tokens  TokenStore
	guard   Guard
	orders  OrderStore
	saga    SagaRunner
	nowFunc func() time.Time
}

// NewService wires the facade.
func NewService(log *slog.Logger, tokens TokenStore, guard Guard, orderStore OrderStore, sagaRunner SagaRunner) *Service {
	return &Service{
		log:     log,
		tokens:  tokens,
		guard:   guard,
		orders:  orderStore,
		saga:    sagaRunner,
		nowFunc: time.Now,
	}
}

// CreateOrderWithIdempotency guarantees at most one order per
// (tenant, idempotency key) under client retries and concurrent
// duplicate submissions.
func (s *Service) CreateOrderWithIdempotency(ctx context.Context, tenantID, userID string, req *validation.CreateOrderRequest, key string) (*CreateOrderResponse, error) {
	now := s.nowFunc().UTC()

	// Step 1: look up the token. A completed key replays its snapshot;
	// a pending key means another coordinator owns the work.
	rec, err := s.tokens.Get(ctx, tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency token: %w", err)
	}
	if rec != nil {
		switch rec.Status {
		case idempotency.StatusCompleted:
			if rec.Expired(now) {
				return nil, ErrIdempotencyExpired
			}
			return replayResponse(rec)
		case idempotency.StatusPending:
			if !rec.Expired(now) {
				return nil, ErrIdempotencyInProgress
			}
			// Expired mid-flight token: the owner is presumed dead, the
			// conditional Put below takes over the key.
		}
		// FAILED falls through: a legitimate retry under the same key.
	}

	// Step 2: guard checks.
	requestHash := validation.CanonicalHash(req)
	if err := s.guard.CheckRateLimit(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if err := s.guard.CheckContentDuplicate(ctx, tenantID, userID, requestHash, key); err != nil {
		return nil, err
	}

	// Step 3: claim the key. Exactly one concurrent caller wins the
	// conditional create; losers observe the winner's outcome.
	if _, err := s.tokens.Put(ctx, tenantID, key, userID, requestHash); err != nil {
		if errors.Is(err, idempotency.ErrTokenExists) {
			rec, gerr := s.tokens.Get(ctx, tenantID, key)
			if gerr != nil {
				return nil, fmt.Errorf("lookup token after lost race: %w", gerr)
			}
			if rec != nil && rec.Status == idempotency.StatusCompleted {
				return replayResponse(rec)
			}
			return nil, ErrIdempotencyInProgress
		}
		return nil, fmt.Errorf("create idempotency token: %w", err)
	}

	resp, err := s.create(ctx, tenantID, userID, req, key)
	if err != nil {
		// Step 5: settle the token as FAILED so the same key may retry.
		// The order stays in whatever state compensation left it.
		if ferr := s.tokens.MarkFailed(ctx, tenantID, key, err.Error()); ferr != nil {
			s.log.Error("failed to mark token FAILED",
				"tenant_id", tenantID, "idempotency_key", key, "err", ferr)
		}
		return nil, err
	}

	// Step 4: settle the token as COMPLETED with the response snapshot.
	body, merr := json.Marshal(resp)
	if merr != nil {
		return nil, fmt.Errorf("marshal response snapshot: %w", merr)
	}
	if err := s.tokens.MarkCompleted(ctx, tenantID, key, resp.OrderID, string(body), http.StatusCreated); err != nil {
		return nil, fmt.Errorf("mark token completed: %w", err)
	}

	return resp, nil
}

// CreateOrder skips all idempotency machinery. Reserved for trusted
// internal callers that manage their own retries.
func (s *Service) CreateOrder(ctx context.Context, tenantID, userID string, req *validation.CreateOrderRequest) (*CreateOrderResponse, error) {
	return s.create(ctx, tenantID, userID, req, "")
}

// GetOrder returns an order for the operator/support surface.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// OrderHistory returns the append-only status history, oldest first.
func (s *Service) OrderHistory(ctx context.Context, orderID string) ([]orders.HistoryEntry, error) {
	return s.orders.History(ctx, orderID)
}

// create builds and persists the order, then runs the saga.
func (s *Service) create(ctx context.Context, tenantID, userID string, req *validation.CreateOrderRequest, key string) (*CreateOrderResponse, error) {
	order, createdEntry, err := buildOrder(tenantID, userID, req, key)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, order, createdEntry); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.log.Info("order created, starting saga",
		"tenant_id", tenantID, "order_id", order.OrderID, "order_number", order.OrderNumber)

	if err := s.saga.Run(ctx, order); err != nil {
		return nil, err
	}

	return &CreateOrderResponse{
		OrderID:     order.OrderID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalCents:  order.Total.Cents,
		Currency:    order.Total.Currency,
	}, nil
}

func buildOrder(tenantID, userID string, req *validation.CreateOrderRequest, key string) (*orders.Order, orders.HistoryEntry, error) {
	items := make([]orders.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		unit, err := orders.FromFloat(it.Price, req.Currency)
		if err != nil {
			return nil, orders.HistoryEntry{}, fmt.Errorf("item %s: %w", it.SKU, err)
		}
		items = append(items, orders.OrderItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: unit,
			Snapshot:  it.Snapshot,
		})
	}

	tax, err := orders.FromFloat(req.Tax, req.Currency)
	if err != nil {
		return nil, orders.HistoryEntry{}, err
	}
	shipping, err := orders.FromFloat(req.Shipping, req.Currency)
	if err != nil {
		return nil, orders.HistoryEntry{}, err
	}
	discount, err := orders.FromFloat(req.Discount, req.Currency)
	if err != nil {
		return nil, orders.HistoryEntry{}, err
	}

	return orders.NewOrder(orders.NewOrderParams{
		TenantID:       tenantID,
		UserID:         userID,
		Items:          items,
		Tax:            tax,
		Shipping:       shipping,
		Discount:       discount,
		BillingAddr:    toAddress(req.BillingAddress),
		ShippingAddr:   toAddress(req.ShippingAddress),
		IdempotencyKey: key,
		Actor:          "user:" + userID,
	})
}

func toAddress(a validation.Address) orders.Address {
	return orders.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func replayResponse(rec *idempotency.Token) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := json.Unmarshal([]byte(rec.ResponseBody), &resp); err != nil {
		return nil, fmt.Errorf("decode stored response snapshot: %w", err)
	}
	resp.Replayed = true
	return &resp, nil
}
