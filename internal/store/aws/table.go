package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/store"
)

var _ store.Table = (*Table)(nil)

// Attribute names of the key schema, shared with the table bootstrap.
const (
	AttrPK = "pk"
	AttrSK = "sk"
)

// IndexAttributes returns the partition and sort key attribute names of a
// global secondary index.
func IndexAttributes(idx keys.Index) (pk, sk string) {
	switch idx {
	case keys.IndexEmail:
		return "gsi1pk", "gsi1sk"
	case keys.IndexStatus:
		return "gsi2pk", "gsi2sk"
	case keys.IndexOrgDate:
		return "gsi3pk", "gsi3sk"
	case keys.IndexDriver:
		return "gsi4pk", "gsi4sk"
	default:
		return AttrPK, AttrSK
	}
}

// record is the DynamoDB representation of a store.Item. Index attributes are
// omitted when empty so the item is absent from that sparse index.
type record struct {
	PK        string    `dynamodbav:"pk"`
	SK        string    `dynamodbav:"sk"`
	GSI1PK    string    `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK    string    `dynamodbav:"gsi1sk,omitempty"`
	GSI2PK    string    `dynamodbav:"gsi2pk,omitempty"`
	GSI2SK    string    `dynamodbav:"gsi2sk,omitempty"`
	GSI3PK    string    `dynamodbav:"gsi3pk,omitempty"`
	GSI3SK    string    `dynamodbav:"gsi3sk,omitempty"`
	GSI4PK    string    `dynamodbav:"gsi4pk,omitempty"`
	GSI4SK    string    `dynamodbav:"gsi4sk,omitempty"`
	Kind      string    `dynamodbav:"kind"`
	Doc       string    `dynamodbav:"doc"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func toRecord(item *store.Item) *record {
	r := &record{
		PK:        item.Key.PK(),
		SK:        item.Key.SK(),
		Kind:      item.Kind,
		Doc:       string(item.Doc),
		UpdatedAt: item.UpdatedAt,
	}
	for idx, k := range item.Indexes {
		switch idx {
		case keys.IndexEmail:
			r.GSI1PK, r.GSI1SK = k.PK(), k.SK()
		case keys.IndexStatus:
			r.GSI2PK, r.GSI2SK = k.PK(), k.SK()
		case keys.IndexOrgDate:
			r.GSI3PK, r.GSI3SK = k.PK(), k.SK()
		case keys.IndexDriver:
			r.GSI4PK, r.GSI4SK = k.PK(), k.SK()
		}
	}
	return r
}

func (r *record) toItem() *store.Item {
	item := &store.Item{
		Key:       keys.Restore(r.PK, r.SK),
		Indexes:   keys.Projections{},
		Kind:      r.Kind,
		Doc:       []byte(r.Doc),
		UpdatedAt: r.UpdatedAt,
	}
	project := func(idx keys.Index, pk, sk string) {
		if pk != "" {
			item.Indexes[idx] = keys.Restore(pk, sk)
		}
	}
	project(keys.IndexEmail, r.GSI1PK, r.GSI1SK)
	project(keys.IndexStatus, r.GSI2PK, r.GSI2SK)
	project(keys.IndexOrgDate, r.GSI3PK, r.GSI3SK)
	project(keys.IndexDriver, r.GSI4PK, r.GSI4SK)
	return item
}

// Table is a DynamoDB single-table implementation of store.Table.
type Table struct {
	client    *dynamodb.Client
	tableName string
}

// NewTable creates a new DynamoDB table store
func NewTable(client *dynamodb.Client, tableName string) *Table {
	return &Table{
		client:    client,
		tableName: tableName,
	}
}

func primaryKey(key keys.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: key.PK()},
		AttrSK: &types.AttributeValueMemberS{Value: key.SK()},
	}
}

// Get retrieves an item by key using a strongly consistent read
func (t *Table) Get(ctx context.Context, key keys.Key) (*store.Item, error) {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            primaryKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to get item")
	}

	if result.Item == nil {
		return nil, store.ErrNotFound
	}

	var r record
	if err := attributevalue.UnmarshalMap(result.Item, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return r.toItem(), nil
}

// Put writes the item, primary and index attributes in a single PutItem
func (t *Table) Put(ctx context.Context, item *store.Item) error {
	av, err := attributevalue.MarshalMap(toRecord(item))
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      av,
	})
	if err != nil {
		return wrapAWSError(err, "failed to put item")
	}

	log.Debug().
		Str("pk", item.Key.PK()).
		Str("sk", item.Key.SK()).
		Str("kind", item.Kind).
		Msg("item written")

	return nil
}

// Create writes the item if no item with the same key exists
func (t *Table) Create(ctx context.Context, item *store.Item) error {
	av, err := attributevalue.MarshalMap(toRecord(item))
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	// Use ConditionExpression to prevent overwrites
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrAlreadyExists
		}
		return wrapAWSError(err, "failed to create item")
	}

	log.Debug().
		Str("pk", item.Key.PK()).
		Str("sk", item.Key.SK()).
		Str("kind", item.Kind).
		Msg("item created")

	return nil
}

// Delete removes the item, failing with store.ErrNotFound if it is absent
func (t *Table) Delete(ctx context.Context, key keys.Key) error {
	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(t.tableName),
		Key:                 primaryKey(key),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrNotFound
		}
		return wrapAWSError(err, "failed to delete item")
	}

	log.Debug().Str("pk", key.PK()).Str("sk", key.SK()).Msg("item deleted")
	return nil
}

// Query runs a key condition query against the table or one of its GSIs
func (t *Table) Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts store.QueryOptions) ([]*store.Item, error) {
	pkName, skName := IndexAttributes(partition.Index())

	keyEx := expression.Key(pkName).Equal(expression.Value(partition.PK()))
	if cond, ok := rangeCondition(expression.Key(skName), rng); ok {
		keyEx = keyEx.And(cond)
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!opts.Descending),
	}
	if partition.Index() != keys.Primary {
		input.IndexName = aws.String(string(partition.Index()))
	} else {
		input.ConsistentRead = aws.Bool(true)
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(min(opts.Limit, 1000))) // #nosec G115 - bounded
	}

	var items []*store.Item
	paginator := dynamodb.NewQueryPaginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAWSError(err, "failed to query items")
		}

		for _, av := range page.Items {
			var r record
			if err := attributevalue.UnmarshalMap(av, &r); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			items = append(items, r.toItem())
		}

		if opts.Limit > 0 && len(items) >= opts.Limit {
			items = items[:opts.Limit]
			break
		}
	}

	return items, nil
}

func rangeCondition(sk expression.KeyBuilder, rng keys.Range) (expression.KeyConditionBuilder, bool) {
	switch rng.Op {
	case keys.OpEqual:
		return sk.Equal(expression.Value(rng.Lo)), true
	case keys.OpBeginsWith:
		return sk.BeginsWith(rng.Lo), true
	case keys.OpBetween:
		return sk.Between(expression.Value(rng.Lo), expression.Value(rng.Hi)), true
	case keys.OpGreaterOrEqual:
		return sk.GreaterThanEqual(expression.Value(rng.Lo)), true
	case keys.OpLessOrEqual:
		return sk.LessThanEqual(expression.Value(rng.Hi)), true
	default:
		return expression.KeyConditionBuilder{}, false
	}
}
