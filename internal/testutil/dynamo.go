package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoTable is an in-memory DynamoDB stand-in for a single table keyed by
// a string hash key. It implements PutItem and a paginated Scan that applies
// an equality filter of the form "#name = :value" after paging, the way
// DynamoDB applies FilterExpression.
type DynamoTable struct {
	mu       sync.Mutex
	hashKey  string
	items    map[string]map[string]types.AttributeValue
	pageSize int

	// PutErr and ScanErr, when set, are returned by every call.
	PutErr  error
	ScanErr error

	scans int
}

// NewDynamoTable creates a table keyed by hashKey returning at most pageSize
// scanned items per page (0 means unlimited).
func NewDynamoTable(hashKey string, pageSize int) *DynamoTable {
	return &DynamoTable{
		hashKey:  hashKey,
		items:    make(map[string]map[string]types.AttributeValue),
		pageSize: pageSize,
	}
}

// PutItem replaces the item with the same hash key.
func (d *DynamoTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.PutErr != nil {
		return nil, d.PutErr
	}
	key, ok := in.Item[d.hashKey].(*types.AttributeValueMemberS)
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: stringPtr("missing hash key " + d.hashKey)}
	}
	item := make(map[string]types.AttributeValue, len(in.Item))
	for k, v := range in.Item {
		item[k] = v
	}
	d.items[key.Value] = item
	return &dynamodb.PutItemOutput{}, nil
}

// Scan returns one page of items in hash key order.
func (d *DynamoTable) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scans++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.ScanErr != nil {
		return nil, d.ScanErr
	}

	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		if last, ok := in.ExclusiveStartKey[d.hashKey].(*types.AttributeValueMemberS); ok {
			start = sort.SearchStrings(keys, last.Value)
			if start < len(keys) && keys[start] == last.Value {
				start++
			}
		}
	}

	end := len(keys)
	if d.pageSize > 0 && start+d.pageSize < end {
		end = start + d.pageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		item := d.items[k]
		if matchesFilter(item, in) {
			out.Items = append(out.Items, item)
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(end - start)
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			d.hashKey: &types.AttributeValueMemberS{Value: keys[end-1]},
		}
	}
	return out, nil
}

// Len returns the number of stored items.
func (d *DynamoTable) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Scans returns how many Scan calls were made.
func (d *DynamoTable) Scans() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

// Seed stores an item directly.
func (d *DynamoTable) Seed(item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if key, ok := item[d.hashKey].(*types.AttributeValueMemberS); ok {
		d.items[key.Value] = item
	}
}

// matchesFilter supports the single "#n = :v" form used by the ledger.
func matchesFilter(item map[string]types.AttributeValue, in *dynamodb.ScanInput) bool {
	if in.FilterExpression == nil {
		return true
	}
	for alias, name := range in.ExpressionAttributeNames {
		for placeholder, want := range in.ExpressionAttributeValues {
			if *in.FilterExpression != alias+" = "+placeholder {
				continue
			}
			got, ok := item[name].(*types.AttributeValueMemberS)
			w, wok := want.(*types.AttributeValueMemberS)
			return ok && wok && got.Value == w.Value
		}
	}
	return false
}

func stringPtr(s string) *string { return &s }
