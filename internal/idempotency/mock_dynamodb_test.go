package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory mock for PutItem/GetItem/UpdateItem/Query
// used in unit tests. It understands exactly the condition expressions the
// Store builds; anything else fails loudly.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue

	putCalls    int
	getCalls    int
	updateCalls int
	queryCalls  int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++

	keyAttr := params.Item["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value

	if params.ConditionExpression != nil {
		cond := *params.ConditionExpression
		if !strings.Contains(cond, "attribute_not_exists(idempotency_key)") {
			return nil, errors.New("unexpected condition: " + cond)
		}
		if existing, ok := m.table[k]; ok {
			failed := params.ExpressionAttributeValues[":failed"].(*types.AttributeValueMemberS).Value
			now, _ := strconv.ParseInt(params.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
			if strAttr(existing, "status") != failed && numAttr(existing, "expires_at") > now {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}

	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++

	keyAttr := params.Key["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	keyAttr := params.Key["idempotency_key"]
	if keyAttr == nil {
		return nil, errors.New("missing key")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :pending" {
		pending := params.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberS).Value
		if strAttr(item, "status") != pending {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	// apply the known update values the Store writes
	if v, ok := params.ExpressionAttributeValues[":to"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":oid"]; ok {
		item["order_id"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rb"]; ok {
		item["response_body"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rs"]; ok {
		item["response_status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":n"]; ok {
		item["note"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++

	if params.IndexName == nil {
		return nil, errors.New("query without index not supported by mock")
	}

	var items []map[string]types.AttributeValue
	switch *params.IndexName {
	case userHashIndex:
		uh := params.ExpressionAttributeValues[":uh"].(*types.AttributeValueMemberS).Value
		completed := params.ExpressionAttributeValues[":completed"].(*types.AttributeValueMemberS).Value
		for _, item := range m.table {
			if strAttr(item, "user_hash") == uh && strAttr(item, "status") == completed {
				items = append(items, item)
			}
		}
	case tenantUserIndex:
		tu := params.ExpressionAttributeValues[":tu"].(*types.AttributeValueMemberS).Value
		since, _ := strconv.ParseInt(params.ExpressionAttributeValues[":since"].(*types.AttributeValueMemberN).Value, 10, 64)
		pending := params.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberS).Value
		for _, item := range m.table {
			if strAttr(item, "tenant_user") == tu && numAttr(item, "created_at_unix") >= since && strAttr(item, "status") == pending {
				items = append(items, item)
			}
		}
	default:
		return nil, errors.New("unknown index: " + *params.IndexName)
	}

	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (m *simpleMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("transact not supported by idempotency mock")
}
