package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrPK    = "PK"
	attrValue = "value"
	attrTTL   = "ttl"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps orchestrator state in a single-key DynamoDB table
// (partition key "PK"). Expiry uses the table's "ttl" attribute; because
// DynamoDB deletes expired items lazily, reads treat them as absent.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func (s *DynamoStore) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key},
	}
}

// Get returns the live value stored under key.
func (s *DynamoStore) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: Get %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}
	expired, err := s.expired(out.Item)
	if err != nil {
		return "", false, fmt.Errorf("repository: Get %q: %w", key, err)
	}
	if expired {
		return "", false, nil
	}
	v, err := strAttr(out.Item, attrValue)
	if err != nil {
		return "", false, fmt.Errorf("repository: Get %q: %w", key, err)
	}
	return v, true, nil
}

// Set writes value under key, replacing any previous value.
func (s *DynamoStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.item(key, value, ttl),
	})
	if err != nil {
		return fmt.Errorf("repository: Set %q: %w", key, err)
	}
	return nil
}

// SetIfAbsent writes value only when key holds no live item. It reports
// whether the write happened.
func (s *DynamoStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     s.item(key, value, ttl),
		ConditionExpression:      aws.String("attribute_not_exists(PK) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{"#ttl": attrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("repository: SetIfAbsent %q: %w", key, err)
	}
	return true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(key),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete %q: %w", key, err)
	}
	return nil
}

// CompareAndDelete removes key only while it still holds value. It reports
// whether the delete happened.
func (s *DynamoStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(key),
		ConditionExpression:      aws.String("#v = :v"),
		ExpressionAttributeNames: map[string]string{"#v": attrValue},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("repository: CompareAndDelete %q: %w", key, err)
	}
	return true, nil
}

func (s *DynamoStore) item(key, value string, ttl time.Duration) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrPK:    &types.AttributeValueMemberS{Value: key},
		attrValue: &types.AttributeValueMemberS{Value: value},
	}
	if ttl > 0 {
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(ttl).Unix(), 10)}
	}
	return item
}

func (s *DynamoStore) expired(item map[string]types.AttributeValue) (bool, error) {
	if _, ok := item[attrTTL]; !ok {
		return false, nil
	}
	ttl, err := int64Attr(item, attrTTL)
	if err != nil {
		return false, err
	}
	return ttl <= s.now().Unix(), nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
