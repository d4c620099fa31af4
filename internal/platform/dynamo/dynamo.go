// Package dynamo provides the single-table DynamoDB adapter behind the
// identity and claims repositories.
//
// The table's partition key attribute is named claim_id for both entity
// kinds: user rows prefix the value with "USER#", claim rows store the bare
// claim UUID. The UserIndex GSI projects on user_id.
package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// KeyAttr is the partition key attribute shared by both entity kinds.
	KeyAttr = "claim_id"

	// UserIndex is the GSI projecting records by their user_id attribute.
	UserIndex = "UserIndex"

	// UserKeyPrefix marks user rows in the shared table.
	UserKeyPrefix = "USER#"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("conditional write failed")
	ErrBadCursor       = errors.New("malformed pagination cursor")
)

// API is the subset of the DynamoDB client the store calls.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Item is a raw DynamoDB record. Repositories marshal their models in and
// out with the attributevalue package.
type Item = map[string]types.AttributeValue

// Predicate is a filter fragment supplied by a repository. Expr references
// aliases from Names and placeholders from Values.
type Predicate struct {
	Expr   string
	Names  map[string]string
	Values Item
}

// Page carries pagination inputs. A zero Limit means no page cap; an empty
// Cursor starts from the beginning.
type Page struct {
	Limit  int32
	Cursor string
}

// Store executes table-level operations against one DynamoDB table.
type Store struct {
	api   API
	table string
}

func NewStore(api API, table string) *Store {
	return &Store{api: api, table: table}
}

// Key builds the partition key item for a raw key value.
func Key(key string) Item {
	return Item{KeyAttr: &types.AttributeValueMemberS{Value: key}}
}

// Get fetches one record by its partition key.
func (s *Store) Get(ctx context.Context, key string) (Item, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       Key(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

// Put writes a full record, replacing any existing one with the same key.
func (s *Store) Put(ctx context.Context, item Item) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// PutIfAbsent writes a record only when its key does not exist yet. Losing
// the condition returns ErrConditionFailed.
func (s *Store) PutIfAbsent(ctx context.Context, item Item) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + KeyAttr + ")"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("conditional put: %w", err)
	}
	return nil
}

// Update applies a SET expression for the given attributes and returns the
// record as stored afterwards. Updating an absent key returns ErrNotFound.
func (s *Store) Update(ctx context.Context, key string, attrs Item) (Item, error) {
	if len(attrs) == 0 {
		return s.Get(ctx, key)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	expr := "SET "
	exprNames := make(map[string]string, len(attrs))
	exprValues := make(Item, len(attrs))
	for i, name := range names {
		alias := fmt.Sprintf("#a%d", i)
		placeholder := fmt.Sprintf(":v%d", i)
		if i > 0 {
			expr += ", "
		}
		expr += alias + " = " + placeholder
		exprNames[alias] = name
		exprValues[placeholder] = attrs[name]
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       Key(key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(" + KeyAttr + ")"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update item %q: %w", key, err)
	}
	return out.Attributes, nil
}

// Delete removes a record by key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       Key(key),
	})
	if err != nil {
		return fmt.Errorf("delete item %q: %w", key, err)
	}
	return nil
}

// Scan reads one page of the table, optionally filtered. A page may come
// back empty while the cursor is still non-empty: DynamoDB applies the page
// limit before the filter. Callers paginate until the cursor runs out.
func (s *Store) Scan(ctx context.Context, filter *Predicate, page Page) ([]Item, string, error) {
	start, err := decodeCursor(page.Cursor)
	if err != nil {
		return nil, "", err
	}

	in := &dynamodb.ScanInput{
		TableName:         aws.String(s.table),
		ExclusiveStartKey: start,
	}
	if page.Limit > 0 {
		in.Limit = aws.Int32(page.Limit)
	}
	if filter != nil {
		in.FilterExpression = aws.String(filter.Expr)
		in.ExpressionAttributeNames = filter.Names
		in.ExpressionAttributeValues = filter.Values
	}

	out, err := s.api.Scan(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("scan: %w", err)
	}

	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, "", err
	}
	return out.Items, next, nil
}

// QueryIndex reads one page of a GSI partition where attr equals value.
func (s *Store) QueryIndex(ctx context.Context, index, attr, value string, page Page) ([]Item, string, error) {
	start, err := decodeCursor(page.Cursor)
	if err != nil {
		return nil, "", err
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: Item{":v": &types.AttributeValueMemberS{Value: value}},
		ExclusiveStartKey:         start,
	}
	if page.Limit > 0 {
		in.Limit = aws.Int32(page.Limit)
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, "", fmt.Errorf("query index %s: %w", index, err)
	}

	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, "", err
	}
	return out.Items, next, nil
}

// encodeCursor turns DynamoDB's LastEvaluatedKey into an opaque string the
// client can hand back for the next page.
func encodeCursor(lek Item) (string, error) {
	if len(lek) == 0 {
		return "", nil
	}
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(lek, &plain); err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (Item, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrBadCursor
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, ErrBadCursor
	}
	start, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, ErrBadCursor
	}
	return start, nil
}
