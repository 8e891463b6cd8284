package orders

import "time"

// Order is the item stored in the orders DynamoDB table.
// It is never physically deleted: CANCELLED and REFUNDED are terminal
// statuses, not removals.
type Order struct {
	OrderID        string      `dynamodbav:"order_id"` // PK
	TenantID       string      `dynamodbav:"tenant_id"`
	OrderNumber    string      `dynamodbav:"order_number"` // externally visible, globally unique
	UserID         string      `dynamodbav:"user_id"`
	Status         Status      `dynamodbav:"status"`
	Subtotal       Money       `dynamodbav:"subtotal"`
	Tax            Money       `dynamodbav:"tax"`
	Shipping       Money       `dynamodbav:"shipping"`
	Discount       Money       `dynamodbav:"discount"`
	Total          Money       `dynamodbav:"total"`
	Items          []OrderItem `dynamodbav:"items"`
	BillingAddr    Address     `dynamodbav:"billing_address"`
	ShippingAddr   Address     `dynamodbav:"shipping_address"`
	IdempotencyKey string      `dynamodbav:"idempotency_key,omitempty"` // back-reference, empty for internal callers
	CreatedAt      time.Time   `dynamodbav:"created_at"`
	UpdatedAt      time.Time   `dynamodbav:"updated_at"`
	ConfirmedAt    *time.Time  `dynamodbav:"confirmed_at,omitempty"`
	ShippedAt      *time.Time  `dynamodbav:"shipped_at,omitempty"`
	DeliveredAt    *time.Time  `dynamodbav:"delivered_at,omitempty"`
	CancelledAt    *time.Time  `dynamodbav:"cancelled_at,omitempty"`
}

// OrderItem is a line item with the product data snapshotted at order time.
type OrderItem struct {
	ProductID  string                 `dynamodbav:"product_id"`
	SKU        string                 `dynamodbav:"sku"`
	Quantity   int                    `dynamodbav:"quantity"`
	UnitPrice  Money                  `dynamodbav:"unit_price"`
	TotalPrice Money                  `dynamodbav:"total_price"`
	Snapshot   map[string]interface{} `dynamodbav:"snapshot,omitempty"` // immutable product data at order time
}

// Address is snapshotted onto the order; later address-book edits do not
// affect placed orders.
type Address struct {
	Line1      string `dynamodbav:"line1" json:"line1"`
	Line2      string `dynamodbav:"line2,omitempty" json:"line2,omitempty"`
	City       string `dynamodbav:"city" json:"city"`
	Region     string `dynamodbav:"region,omitempty" json:"region,omitempty"`
	PostalCode string `dynamodbav:"postal_code" json:"postal_code"`
	Country    string `dynamodbav:"country" json:"country"`
}

// HistoryEntry is one row in the append-only order status history table.
// It is the sole record of why a status changed; rows are never rewritten.
type HistoryEntry struct {
	OrderID        string    `dynamodbav:"order_id"`   // PK
	ChangedAtNanos int64     `dynamodbav:"changed_at"` // SK, UnixNano for chronological queries
	PreviousStatus Status    `dynamodbav:"previous_status"`
	NewStatus      Status    `dynamodbav:"new_status"`
	Reason         string    `dynamodbav:"reason"`
	ChangedBy      string    `dynamodbav:"changed_by"`
	ChangedAt      time.Time `dynamodbav:"changed_at_ts"`
}
