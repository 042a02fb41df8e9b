package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore implements Store using DynamoDB. All preferences of a device
// live in one item under a `preferences` map attribute.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
	deviceID  string
}

// NewDynamoStore creates a DynamoDB client and returns a DynamoStore.
func NewDynamoStore(ctx context.Context, cfg StoreConfig, deviceID string) (*DynamoStore, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.AWSRegion))

	if cfg.DynamoEndpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.DynamoEndpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &DynamoStore{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.DynamoTableName,
		deviceID:  deviceID,
	}, nil
}

func (s *DynamoStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "DEVICE#" + s.deviceID},
	}
}

func (s *DynamoStore) GetAll(ctx context.Context) (map[string]string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem: %w", err)
	}

	if out.Item == nil {
		return nil, nil
	}

	return unmarshalPrefs(out.Item)
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, bool, error) {
	prefs, err := s.GetAll(ctx)
	if err != nil {
		return "", false, err
	}

	val, found := prefs[key]
	return val, found, nil
}

// Set writes one key in place. When the device item does not exist yet the
// nested update fails its condition and a fresh item is put instead.
func (s *DynamoStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	updateExpr := "SET preferences.#k = :v, updatedAt = :now"
	condExpr := "attribute_exists(preferences)"

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(),
		UpdateExpression:         &updateExpr,
		ConditionExpression:      &condExpr,
		ExpressionAttributeNames: map[string]string{"#k": key},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":   &types.AttributeValueMemberS{Value: value},
			":now": &types.AttributeValueMemberS{Value: now},
		},
	})
	if err == nil {
		return nil
	}

	var condFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &condFailed) {
		return fmt.Errorf("UpdateItem: %w", err)
	}

	item := s.key()
	item["preferences"] = &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
		key: &types.AttributeValueMemberS{Value: value},
	}}
	item["createdAt"] = &types.AttributeValueMemberS{Value: now}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("PutItem: %w", err)
	}

	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	updateExpr := "REMOVE preferences.#key"
	condExpr := "attribute_exists(preferences)"

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(),
		UpdateExpression:         &updateExpr,
		ConditionExpression:      &condExpr,
		ExpressionAttributeNames: map[string]string{"#key": key},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return nil
		}
		return fmt.Errorf("UpdateItem (REMOVE): %w", err)
	}

	return nil
}

func (s *DynamoStore) DeleteAll(ctx context.Context) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem: %w", err)
	}

	return nil
}

func (s *DynamoStore) Close() error {
	return nil
}

// unmarshalPrefs extracts the preferences map from a DynamoDB item.
func unmarshalPrefs(item map[string]types.AttributeValue) (map[string]string, error) {
	prefsAttr, ok := item["preferences"]
	if !ok {
		return nil, nil
	}

	prefsMap, ok := prefsAttr.(*types.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("preferences attribute is not a map")
	}

	result := make(map[string]string, len(prefsMap.Value))
	for k, v := range prefsMap.Value {
		sv, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		result[k] = sv.Value
	}

	return result, nil
}

func boolPtr(b bool) *bool { return &b }
