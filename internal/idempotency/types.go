package idempotency

import "time"

// Status values for idempotency tokens. A token is created PENDING and
// moves to COMPLETED or FAILED exactly once.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Token is the shape persisted in the idempotency DynamoDB table.
// The table key is tenant-scoped (tenant_id#token) so the same client
// token never collides across tenants. Two GSIs serve the guard:
// user_hash (content-duplicate lookup) and tenant_user + created_at_unix
// (rate-limit counting). expires_at drives the native TTL sweep.
type Token struct {
	Key            string    `dynamodbav:"idempotency_key"` // PK: tenant_id#token
	TenantID       string    `dynamodbav:"tenant_id"`
	Token          string    `dynamodbav:"token"` // client-supplied value
	UserID         string    `dynamodbav:"user_id"`
	RequestHash    string    `dynamodbav:"request_hash"` // sha256 of canonical request body
	UserHash       string    `dynamodbav:"user_hash"`    // GSI PK: tenant_id#user_id#request_hash
	TenantUser     string    `dynamodbav:"tenant_user"`  // GSI PK: tenant_id#user_id
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // small responses only; else use S3 pointer
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	Note           string    `dynamodbav:"note,omitempty"` // failure detail, diagnostic only
	CreatedAt      time.Time `dynamodbav:"created_at"`
	CreatedAtUnix  int64     `dynamodbav:"created_at_unix"` // GSI SK for range queries
	ExpiresAt      int64     `dynamodbav:"expires_at"`      // TTL epoch seconds
}

// Expired reports whether the token's retention window has passed.
func (t *Token) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

func tokenKey(tenantID, token string) string       { return tenantID + "#" + token }
func userHashKey(tenantID, userID, hash string) string { return tenantID + "#" + userID + "#" + hash }
func tenantUserKey(tenantID, userID string) string { return tenantID + "#" + userID }
