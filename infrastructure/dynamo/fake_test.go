package dynamo

import (
	"context"
	stderrors "errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in memory table understanding only the expressions the
// repositories send.
type fakeClient struct {
	mu       sync.Mutex
	items    map[string]map[string]map[string]types.AttributeValue
	pageSize int
	err      error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[string]map[string]map[string]types.AttributeValue{}}
}

var errThrottled = stderrors.New("throttled")

func (f *fakeClient) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, f.err
}

func (f *fakeClient) get(k map[string]types.AttributeValue) map[string]types.AttributeValue {
	partition := f.items[getString(k, attrPK)]
	if partition == nil {
		return nil
	}
	return partition[getString(k, attrSK)]
}

func (f *fakeClient) put(item map[string]types.AttributeValue) {
	pk := getString(item, attrPK)
	if f.items[pk] == nil {
		f.items[pk] = map[string]map[string]types.AttributeValue{}
	}
	copied := make(map[string]types.AttributeValue, len(item))
	for name, value := range item {
		copied[name] = value
	}
	f.items[pk][getString(item, attrSK)] = copied
}

func (f *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.get(in.Key)}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if in.ConditionExpression != nil && f.get(in.Item) != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("item exists")}
	}
	f.put(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	at, _ := strconv.ParseInt(getNumber(in.ExpressionAttributeValues, ":at"), 10, 64)
	item := f.get(in.Key)
	if item == nil {
		item = map[string]types.AttributeValue{attrPK: in.Key[attrPK], attrSK: in.Key[attrSK]}
	} else {
		last, _ := strconv.ParseInt(getNumber(item, "LastAt"), 10, 64)
		if last > at {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("head ahead")}
		}
	}
	seq, _ := strconv.ParseUint(getNumber(item, "Seq"), 10, 64)
	item["Seq"] = num(strconv.FormatUint(seq+1, 10))
	item["LastAt"] = num(strconv.FormatInt(at, 10))
	f.put(item)
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"Seq":    item["Seq"],
		"LastAt": item["LastAt"],
	}}, nil
}

func (f *fakeClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, transact := range in.TransactItems {
		if transact.Put.ConditionExpression != nil && f.get(transact.Put.Item) != nil {
			return nil, &types.TransactionCanceledException{Message: aws.String("condition failed")}
		}
	}
	for _, transact := range in.TransactItems {
		f.put(transact.Put.Item)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	partition := f.items[getString(in.ExpressionAttributeValues, ":pk")]
	prefix := getString(in.ExpressionAttributeValues, ":prefix")
	after := getString(in.ExclusiveStartKey, attrSK)

	var sortKeys []string
	for sk := range partition {
		if strings.HasPrefix(sk, prefix) && sk > after {
			sortKeys = append(sortKeys, sk)
		}
	}
	sort.Strings(sortKeys)

	out := &dynamodb.QueryOutput{}
	for _, sk := range sortKeys {
		if f.pageSize > 0 && len(out.Items) == f.pageSize {
			last := out.Items[len(out.Items)-1]
			out.LastEvaluatedKey = itemKey(getString(last, attrPK), getString(last, attrSK))
			break
		}
		out.Items = append(out.Items, partition[sk])
	}
	return out, nil
}
