package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/commercekit/orderflow/internal/aws"
)

// ErrOrderExists indicates a create collided with an existing order id.
var ErrOrderExists = errors.New("order already exists")

// ErrStatusConflict indicates the persisted status no longer matches the
// status the transition was computed from (a concurrent writer won).
var ErrStatusConflict = errors.New("order status conflict")

// Store persists orders and their append-only status history.
// Every write that changes status lands the order row and the history row
// in a single TransactWriteItems call, so history can never be missing a
// transition that the order row shows.
type Store struct {
	client       aws.DynamoDBAPI
	ordersTable  string
	historyTable string
	nowFunc      func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, ordersTable, historyTable string) *Store {
	return &Store{
		client:       client,
		ordersTable:  ordersTable,
		historyTable: historyTable,
		nowFunc:      time.Now,
	}
}

// Create persists a new order together with its creation history entry.
func (s *Store) Create(ctx context.Context, o *Order, created HistoryEntry) error {
	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	histMap, err := attributevalue.MarshalMap(created)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.ordersTable,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
			{
				Put: &types.Put{
					TableName: &s.historyTable,
					Item:      histMap,
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrOrderExists
		}
		return fmt.Errorf("transact write order: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.ordersTable,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// SaveTransition persists an order whose status was just changed by
// Order.TransitionTo, appending the history entry in the same transaction.
// The write is conditioned on the persisted status still being
// entry.PreviousStatus; a concurrent writer causes ErrStatusConflict and
// nothing is written.
func (s *Store) SaveTransition(ctx context.Context, o *Order, entry HistoryEntry) error {
	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	histMap, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                &s.ordersTable,
					Item:                     orderMap,
					ConditionExpression:      awsString("#s = :prev"),
					ExpressionAttributeNames: map[string]string{"#s": "status"},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":prev": &types.AttributeValueMemberS{Value: string(entry.PreviousStatus)},
					},
				},
			},
			{
				Put: &types.Put{
					TableName: &s.historyTable,
					Item:      histMap,
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrStatusConflict
		}
		return fmt.Errorf("transact write transition: %w", err)
	}
	return nil
}

// History returns the append-only status history for an order, oldest first.
func (s *Store) History(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.historyTable,
		KeyConditionExpression: awsString("order_id = :oid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(out.Items))
	for _, item := range out.Items {
		var e HistoryEntry
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func awsString(s string) *string { return &s }
