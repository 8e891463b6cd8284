package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/commercekit/orderflow/internal/aws"
)

// ErrSagaExists indicates an active saga already holds this order.
var ErrSagaExists = errors.New("saga already exists for order")

// StateStore persists saga state. Satisfied by *DynamoStore; tests use an
// in-memory fake.
type StateStore interface {
	Create(ctx context.Context, state *State) error
	Update(ctx context.Context, state *State) error
	GetByOrder(ctx context.Context, orderID string) (*State, error)
}

// DynamoStore is the DynamoDB implementation of StateStore.
// The table is keyed by order_id, which enforces one active saga per
// order via the conditional create.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a saga state store.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create writes the initial STARTED record before any collaborator is
// called. Fails with ErrSagaExists if a saga already holds the order.
func (s *DynamoStore) Create(ctx context.Context, state *State) error {
	now := s.nowFunc().UTC()
	state.CreatedAt = now
	state.UpdatedAt = now

	item, err := attributevalue.MarshalMap(state)
	if err != nil {
		return fmt.Errorf("marshal saga state: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrSagaExists
		}
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrSagaExists
		}
		return fmt.Errorf("put saga state: %w", err)
	}
	return nil
}

// Update overwrites the saga record. The write is conditioned on the
// record existing so a lost create can never be papered over.
func (s *DynamoStore) Update(ctx context.Context, state *State) error {
	state.UpdatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(state)
	if err != nil {
		return fmt.Errorf("marshal saga state: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_exists(order_id)"),
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("update saga state: %w", err)
	}
	return nil
}

// GetByOrder fetches the saga for an order. Returns (nil, nil) if none exists.
func (s *DynamoStore) GetByOrder(ctx context.Context, orderID string) (*State, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get saga state: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var state State
	if err := attributevalue.UnmarshalMap(out.Item, &state); err != nil {
		return nil, fmt.Errorf("unmarshal saga state: %w", err)
	}
	return &state, nil
}

func awsString(s string) *string { return &s }
