package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/commercekit/orderflow/internal/aws"
)

// GSI names on the idempotency table.
const (
	userHashIndex   = "user-hash-index"   // PK user_hash
	tenantUserIndex = "tenant-user-index" // PK tenant_user, SK created_at_unix
)

// ErrTokenExists indicates a conditional create lost the race: a live
// token already holds the key. The caller must look the token up and act
// on its status instead of creating a second order.
var ErrTokenExists = errors.New("idempotency token already exists")

// ErrNotPending indicates a PENDING -> COMPLETED/FAILED transition found
// the token no longer PENDING. Exactly one caller ever wins this CAS.
var ErrNotPending = errors.New("idempotency token is not pending")

// Store encapsulates idempotency token operations against DynamoDB.
// The PENDING -> {COMPLETED, FAILED} transition is a conditional update,
// which is the single synchronization point that yields at most one
// order per idempotency key under concurrent retries.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // retention window for created tokens
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency tokens.
// ttlWindow: retention window (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Put creates a PENDING token for (tenant, token). The conditional write
// succeeds when no token holds the key, or when the existing token is
// FAILED or past its expiry, both of which permit a legitimate retry
// under the same key. Returns ErrTokenExists when a live token won.
func (s *Store) Put(ctx context.Context, tenantID, token, userID, requestHash string) (*Token, error) {
	now := s.nowFunc().UTC()
	rec := Token{
		Key:           tokenKey(tenantID, token),
		TenantID:      tenantID,
		Token:         token,
		UserID:        userID,
		RequestHash:   requestHash,
		UserHash:      userHashKey(tenantID, userID, requestHash),
		TenantUser:    tenantUserKey(tenantID, userID),
		Status:        StatusPending,
		CreatedAt:     now,
		CreatedAtUnix: now.Unix(),
		ExpiresAt:     now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at <= :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return nil, ErrTokenExists
		}
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil, ErrTokenExists
		}
		return nil, fmt.Errorf("put token: %w", err)
	}

	return &rec, nil
}

// Get retrieves a token by (tenant, token). If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, tenantID, token string) (*Token, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: tokenKey(tenantID, token)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Token
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &rec, nil
}

// FindCompletedByUserAndHash returns a COMPLETED token for identical
// canonical request content, regardless of the token value it was
// submitted under. Returns (nil, nil) when none exists.
func (s *Store) FindCompletedByUserAndHash(ctx context.Context, tenantID, userID, requestHash string) (*Token, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(userHashIndex),
		KeyConditionExpression: awsString("user_hash = :uh"),
		FilterExpression:       awsString("#s = :completed"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uh":        &types.AttributeValueMemberS{Value: userHashKey(tenantID, userID, requestHash)},
			":completed": &types.AttributeValueMemberS{Value: StatusCompleted},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query user hash: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var rec Token
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &rec, nil
}

// CountActiveSince counts PENDING tokens for a user created at or after
// `since`. The count tolerates eventual consistency on the GSI: slight
// overcounting biases toward false rejection, never toward double-spend.
func (s *Store) CountActiveSince(ctx context.Context, tenantID, userID string, since time.Time) (int, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(tenantUserIndex),
		KeyConditionExpression: awsString("tenant_user = :tu AND created_at_unix >= :since"),
		FilterExpression:       awsString("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tu":      &types.AttributeValueMemberS{Value: tenantUserKey(tenantID, userID)},
			":since":   &types.AttributeValueMemberN{Value: strconv.FormatInt(since.Unix(), 10)},
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, fmt.Errorf("query active tokens: %w", err)
	}
	return int(out.Count), nil
}

// MarkCompleted performs the atomic PENDING -> COMPLETED transition,
// storing the order id and the response snapshot that replays will
// return verbatim. Fails with ErrNotPending if another caller already
// settled the token.
func (s *Store) MarkCompleted(ctx context.Context, tenantID, token, orderID, responseBody string, responseStatus int) error {
	return s.settle(ctx, tenantID, token, StatusCompleted, map[string]types.AttributeValue{
		":oid": &types.AttributeValueMemberS{Value: orderID},
		":rb":  &types.AttributeValueMemberS{Value: responseBody},
		":rs":  &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
	}, "SET #s = :to, order_id = :oid, response_body = :rb, response_status = :rs")
}

// MarkFailed performs the atomic PENDING -> FAILED transition with a
// diagnostic note. A FAILED token permits a retry under the same key.
func (s *Store) MarkFailed(ctx context.Context, tenantID, token, note string) error {
	return s.settle(ctx, tenantID, token, StatusFailed, map[string]types.AttributeValue{
		":n": &types.AttributeValueMemberS{Value: note},
	}, "SET #s = :to, note = :n")
}

func (s *Store) settle(ctx context.Context, tenantID, token, to string, values map[string]types.AttributeValue, updateExpr string) error {
	values[":to"] = &types.AttributeValueMemberS{Value: to}
	values[":pending"] = &types.AttributeValueMemberS{Value: StatusPending}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: tokenKey(tenantID, token)},
		},
		UpdateExpression:          awsString(updateExpr),
		ConditionExpression:       awsString("#s = :pending"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrNotPending
		}
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrNotPending
		}
		return fmt.Errorf("update token (%s): %w", to, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
