// Package handlers exposes the order-creation facade over HTTP.
// Authentication and rate limiting at the gateway are upstream concerns;
// the handlers trust the tenant/user headers the gateway injects.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/commercekit/orderflow/internal/idempotency"
	"github.com/commercekit/orderflow/internal/saga"
	"github.com/commercekit/orderflow/internal/service"
	"github.com/commercekit/orderflow/internal/validation"
)

// SagaReader serves the operator reconciliation view.
type SagaReader interface {
	GetByOrder(ctx context.Context, orderID string) (*saga.State, error)
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service *service.Service
	Sagas   SagaReader
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		tenantID, userID, ok := callerContext(c)
		if !ok {
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		resp, err := cfg.Service.CreateOrderWithIdempotency(ctx, tenantID, userID, &req, idempKey)
		if err != nil {
			writeError(c, err)
			return
		}

		status := http.StatusCreated
		if resp.Replayed {
			status = http.StatusOK
		}
		c.Header("Location", "/orders/"+resp.OrderID)
		c.JSON(status, resp)
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := cfg.Service.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.GET("/orders/:id/history", func(c *gin.Context) {
		entries, err := cfg.Service.OrderHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "history": entries})
	})

	// Operator/support surface: where is (or was) the saga for this order.
	r.GET("/orders/:id/saga", func(c *gin.Context) {
		state, err := cfg.Sagas.GetByOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "saga_not_found"})
			return
		}
		c.JSON(http.StatusOK, state)
	})
}

// callerContext extracts the gateway-injected tenant and user. Missing
// headers mean a misconfigured gateway, not a client error, but 400 keeps
// the failure visible to the caller.
func callerContext(c *gin.Context) (tenantID, userID string, ok bool) {
	tenantID = c.GetHeader("X-Tenant-Id")
	userID = c.GetHeader("X-User-Id")
	if tenantID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_caller_context"})
		return "", "", false
	}
	return tenantID, userID, true
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var dup *idempotency.DuplicateOrderError
	if errors.As(err, &dup) {
		c.JSON(http.StatusConflict, gin.H{
			"error":             "duplicate_order",
			"existing_order_id": dup.ExistingOrderID,
		})
		return
	}

	var ce *saga.CollaboratorError
	if errors.As(err, &ce) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":        "collaborator_unavailable",
			"collaborator": ce.Collaborator,
		})
		return
	}

	switch {
	case errors.Is(err, idempotency.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit_exceeded"})
	case errors.Is(err, service.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_in_progress"})
	case errors.Is(err, service.ErrIdempotencyExpired):
		c.JSON(http.StatusGone, gin.H{"error": "idempotency_key_expired"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}
