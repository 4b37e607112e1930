package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	getOut          *dynamodb.GetItemOutput
	getErr          error
	putErr          error
	deleteErr       error
	lastGetInput    *dynamodb.GetItemInput
	lastPutInput    *dynamodb.PutItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

var fixedNow = time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

func mustNewStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	s, err := NewDynamoStore(db, "test-table")
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func makeItem(key, value string, ttl *int64) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: key},
		"value": &types.AttributeValueMemberS{Value: value},
	}
	if ttl != nil {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*ttl, 10)}
	}
	return item
}

func int64Ptr(n int64) *int64 { return &n }

func TestGet_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeItem("session#5511", `{"stage":"INIT"}`, nil)}}
	s := mustNewStore(t, db)

	v, ok, err := s.Get(context.Background(), "session#5511")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"stage":"INIT"}`, v)
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "session#5511", db.lastGetInput.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestGet_Missing(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	_, ok, err := s.Get(context.Background(), "session#5511")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_ExpiredItemIsAbsent(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeItem("event#1", "1", int64Ptr(fixedNow.Add(-time.Second).Unix()))}}
	s := mustNewStore(t, db)
	_, ok, err := s.Get(context.Background(), "event#1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_LiveTTL(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeItem("event#1", "1", int64Ptr(fixedNow.Add(time.Hour).Unix()))}}
	s := mustNewStore(t, db)
	v, ok, err := s.Get(context.Background(), "event#1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)
}

func TestGet_MalformedTTL(t *testing.T) {
	item := makeItem("event#1", "1", nil)
	item["ttl"] = &types.AttributeValueMemberS{Value: "soon"}
	s := mustNewStore(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}})
	_, _, err := s.Get(context.Background(), "event#1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a number")
}

func TestGet_Error(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{getErr: errors.New("ResourceNotFoundException")})
	_, _, err := s.Get(context.Background(), "session#5511")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Get")
}

func TestSet_WritesTTL(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	require.NoError(t, s.Set(context.Background(), "session#5511", "v", time.Hour))

	item := db.lastPutInput.Item
	require.Equal(t, "v", item["value"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, strconv.FormatInt(fixedNow.Add(time.Hour).Unix(), 10), item["ttl"].(*types.AttributeValueMemberN).Value)
	require.Nil(t, db.lastPutInput.ConditionExpression)
}

func TestSet_NoTTL(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	_, ok := db.lastPutInput.Item["ttl"]
	require.False(t, ok)
}

func TestSet_Error(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")})
	err := s.Set(context.Background(), "k", "v", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Set")
}

func TestSetIfAbsent_Written(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	ok, err := s.SetIfAbsent(context.Background(), "lock#5511", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "attribute_not_exists(PK) OR #ttl <= :now", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "ttl", db.lastPutInput.ExpressionAttributeNames["#ttl"])
}

func TestSetIfAbsent_ConditionFailed(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
	s := mustNewStore(t, db)
	ok, err := s.SetIfAbsent(context.Background(), "lock#5511", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetIfAbsent_OtherError(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{putErr: errors.New("internal server error")})
	_, err := s.SetIfAbsent(context.Background(), "lock#5511", "1", time.Minute)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SetIfAbsent")
}

func TestDelete(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)
	require.NoError(t, s.Delete(context.Background(), "lock#5511"))
	require.Equal(t, "lock#5511", db.lastDeleteInput.Key["PK"].(*types.AttributeValueMemberS).Value)
}

func TestDelete_Error(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{deleteErr: errors.New("boom")})
	err := s.Delete(context.Background(), "lock#5511")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Delete")
}

func TestSetIfAbsent_ExpiryMatchesGet(t *testing.T) {
	// An item whose ttl equals now is already absent to Get, so the
	// conditional write must accept it too.
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: makeItem("lock#5511", "1", int64Ptr(fixedNow.Unix()))}}
	s := mustNewStore(t, db)

	_, found, err := s.Get(context.Background(), "lock#5511")
	require.NoError(t, err)
	require.False(t, found)

	_, err = s.SetIfAbsent(context.Background(), "lock#5511", "2", time.Minute)
	require.NoError(t, err)
	require.Contains(t, *db.lastPutInput.ConditionExpression, "#ttl <= :now")
	now := db.lastPutInput.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value
	require.Equal(t, strconv.FormatInt(fixedNow.Unix(), 10), now)
}

func TestCompareAndDelete(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewStore(t, db)

	ok, err := s.CompareAndDelete(context.Background(), "lock#5511", "turn-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "lock#5511", db.lastDeleteInput.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "#v = :v", *db.lastDeleteInput.ConditionExpression)
	require.Equal(t, "value", db.lastDeleteInput.ExpressionAttributeNames["#v"])
	require.Equal(t, "turn-1", db.lastDeleteInput.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberS).Value)
}

func TestCompareAndDelete_HeldByOther(t *testing.T) {
	db := &fakeDynamo{deleteErr: &types.ConditionalCheckFailedException{Message: aws.String("mismatch")}}
	s := mustNewStore(t, db)
	ok, err := s.CompareAndDelete(context.Background(), "lock#5511", "turn-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompareAndDelete_Error(t *testing.T) {
	s := mustNewStore(t, &fakeDynamo{deleteErr: errors.New("boom")})
	_, err := s.CompareAndDelete(context.Background(), "lock#5511", "turn-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "CompareAndDelete")
}

func TestNewDynamoStore_NilAPI(t *testing.T) {
	_, err := NewDynamoStore(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNewDynamoStore_EmptyTableName(t *testing.T) {
	_, err := NewDynamoStore(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}
