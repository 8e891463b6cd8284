package validation

// Item represents a single order line item.
type Item struct {
	ProductID string                 `json:"product_id" validate:"required"`
	SKU       string                 `json:"sku" validate:"required"`            // stock keeping unit
	Quantity  int                    `json:"quantity" validate:"required,min=1"` // must be >= 1
	Price     float64                `json:"price" validate:"required,gt=0"`     // price per unit
	Snapshot  map[string]interface{} `json:"snapshot,omitempty"`                 // product data at order time
}

// Address is a postal address supplied with the order.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"` // ISO 3166-1 alpha-2
}

// CreateOrderRequest is the payload for POST /orders.
// Tenant and user come from the authenticated caller context, never from
// the body.
type CreateOrderRequest struct {
	Items           []Item  `json:"items" validate:"required,min=1,dive"` // at least one item
	Currency        string  `json:"currency" validate:"required,len=3"`   // ISO 4217
	Tax             float64 `json:"tax" validate:"gte=0"`
	Shipping        float64 `json:"shipping" validate:"gte=0"`
	Discount        float64 `json:"discount" validate:"gte=0"`
	Amount          float64 `json:"amount" validate:"required,gt=0"` // total the client claims
	BillingAddress  Address `json:"billing_address" validate:"required"`
	ShippingAddress Address `json:"shipping_address" validate:"required"`
}
