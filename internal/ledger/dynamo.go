package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/roach88/promptinfra/internal/ir"
)

// SourceTag marks items written by this tool. Scan filters on it so a
// shared table can hold other items.
const SourceTag = "promptinfra"

// DefaultDynamoTimeout bounds each DynamoDB call.
const DefaultDynamoTimeout = 10 * time.Second

// DynamoClient is the subset of the DynamoDB API the ledger uses.
// *dynamodb.Client satisfies it.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoBackend stores one item per record, keyed by deployment_id.
type DynamoBackend struct {
	client  DynamoClient
	table   string
	timeout time.Duration
}

// NewDynamoBackend builds a backend over table. A zero timeout uses
// DefaultDynamoTimeout.
func NewDynamoBackend(client DynamoClient, table string, timeout time.Duration) (*DynamoBackend, error) {
	if client == nil {
		return nil, errors.New("dynamodb ledger: nil client")
	}
	if table == "" {
		return nil, errors.New("dynamodb ledger: table is empty")
	}
	if timeout <= 0 {
		timeout = DefaultDynamoTimeout
	}
	return &DynamoBackend{client: client, table: table, timeout: timeout}, nil
}

func (b *DynamoBackend) Name() string { return "dynamodb" }

// Put replaces the item for rec.ID.
func (b *DynamoBackend) Put(ctx context.Context, rec ir.DeploymentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item:      encodeItem(rec),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Scan pages through the table lazily, one page per exhausted buffer.
func (b *DynamoBackend) Scan(ctx context.Context) (Cursor, error) {
	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:                aws.String(b.table),
		FilterExpression:         aws.String("#src = :src"),
		ExpressionAttributeNames: map[string]string{"#src": "source"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":src": &types.AttributeValueMemberS{Value: SourceTag},
		},
	})
	return &dynamoCursor{paginator: paginator, timeout: b.timeout}, nil
}

type dynamoCursor struct {
	paginator *dynamodb.ScanPaginator
	timeout   time.Duration
	page      []map[string]types.AttributeValue
}

func (c *dynamoCursor) Next(ctx context.Context) (ir.DeploymentRecord, bool, error) {
	for len(c.page) == 0 {
		if c.paginator == nil || !c.paginator.HasMorePages() {
			return ir.DeploymentRecord{}, false, nil
		}
		pageCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := c.paginator.NextPage(pageCtx)
		cancel()
		if err != nil {
			return ir.DeploymentRecord{}, false, fmt.Errorf("scan page: %w", err)
		}
		c.page = out.Items
	}

	item := c.page[0]
	c.page = c.page[1:]
	rec, err := decodeItem(item)
	if err != nil {
		return ir.DeploymentRecord{}, false, err
	}
	return rec, true, nil
}

func (c *dynamoCursor) Close() error {
	c.paginator = nil
	c.page = nil
	return nil
}

func encodeItem(rec ir.DeploymentRecord) map[string]types.AttributeValue {
	tags := make(map[string]types.AttributeValue, len(rec.Tags))
	for k, v := range rec.Tags {
		tags[k] = &types.AttributeValueMemberS{Value: v}
	}
	return map[string]types.AttributeValue{
		"deployment_id":          &types.AttributeValueMemberS{Value: rec.ID},
		"created_at":             &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"prompt":                 &types.AttributeValueMemberS{Value: rec.Prompt},
		"resource_count":         &types.AttributeValueMemberN{Value: strconv.Itoa(rec.ResourceCount)},
		"estimated_monthly_cost": &types.AttributeValueMemberN{Value: rec.EstimatedMonthlyCost.String()},
		"tags":                   &types.AttributeValueMemberM{Value: tags},
		"status":                 &types.AttributeValueMemberS{Value: string(rec.Status)},
		"cache_key":              &types.AttributeValueMemberS{Value: string(rec.CacheKey)},
		"artifact_digest":        &types.AttributeValueMemberS{Value: rec.ArtifactDigest},
		"version":                &types.AttributeValueMemberS{Value: rec.Version},
		"source":                 &types.AttributeValueMemberS{Value: SourceTag},
	}
}

func decodeItem(item map[string]types.AttributeValue) (ir.DeploymentRecord, error) {
	var rec ir.DeploymentRecord
	rec.ID = stringAttr(item, "deployment_id")
	if rec.ID == "" {
		return ir.DeploymentRecord{}, errors.New("decode item: missing deployment_id")
	}

	if s := stringAttr(item, "created_at"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return ir.DeploymentRecord{}, fmt.Errorf("decode item %s: created_at: %w", rec.ID, err)
		}
		rec.CreatedAt = t
	}
	rec.Prompt = stringAttr(item, "prompt")

	if n, ok := item["resource_count"].(*types.AttributeValueMemberN); ok {
		count, err := strconv.Atoi(n.Value)
		if err != nil {
			return ir.DeploymentRecord{}, fmt.Errorf("decode item %s: resource_count: %w", rec.ID, err)
		}
		rec.ResourceCount = count
	}
	if n, ok := item["estimated_monthly_cost"].(*types.AttributeValueMemberN); ok {
		cost, err := ir.ParseUSD(n.Value)
		if err != nil {
			return ir.DeploymentRecord{}, fmt.Errorf("decode item %s: %w", rec.ID, err)
		}
		rec.EstimatedMonthlyCost = cost
	}

	rec.Tags = map[string]string{}
	if m, ok := item["tags"].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				rec.Tags[k] = s.Value
			}
		}
	}

	rec.Status = ir.DeploymentStatus(stringAttr(item, "status"))
	rec.CacheKey = ir.CacheKey(stringAttr(item, "cache_key"))
	rec.ArtifactDigest = stringAttr(item, "artifact_digest")
	rec.Version = stringAttr(item, "version")
	return rec, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
