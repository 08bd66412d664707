// Package state persists per-record sync status in DynamoDB. The
// table is partitioned by batch (a year-week string) and
// sorted by email; rows are written once per ingestion and their
// status advances as the processor works through them. History is
// append-only across batches.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chapterhq/roster-sync/internal/config"
)

// Status is the processing lifecycle of one record. Transitions are
// linear; a crash mid-processing leaves the record at Processing
// until an operator requeues it.
type Status int

const (
	Unprocessed Status = iota
	Processing
	Processed
	Failed
)

func (s Status) String() string {
	switch s {
	case Unprocessed:
		return "UNPROCESSED"
	case Processing:
		return "PROCESSING"
	case Processed:
		return "PROCESSED"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Item is one row of the state table.
type Item struct {
	Batch  string `dynamodbav:"batch"`
	Email  string `dynamodbav:"email"`
	Raw    string `dynamodbav:"raw"`
	Status Status `dynamodbav:"status"`
}

// ErrNotFound is returned by Get when no row exists for the key.
var ErrNotFound = errors.New("state: item not found")

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store reads and writes sync-state rows.
type Store struct {
	db    DynamoAPI
	table string
}

// NewStore creates a Store connected to DynamoDB.
func NewStore(ctx context.Context, cfg config.StateConfig) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var dbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		dbOpts = append(dbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		db:    dynamodb.NewFromConfig(awsCfg, dbOpts...),
		table: cfg.Table,
	}, nil
}

// NewStoreWithClient wires an existing DynamoDB client, used by tests.
func NewStoreWithClient(db DynamoAPI, table string) *Store {
	return &Store{db: db, table: table}
}

func itemKey(batch, email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"batch": &types.AttributeValueMemberS{Value: batch},
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

// Get fetches one row, returning ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, batch, email string) (Item, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(batch, email),
	})
	if err != nil {
		return Item{}, fmt.Errorf("getting state item: %w", err)
	}
	if out.Item == nil {
		return Item{}, ErrNotFound
	}

	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Item{}, fmt.Errorf("unmarshaling state item: %w", err)
	}
	return item, nil
}

// Put writes a row, overwriting any existing row with the same key.
func (s *Store) Put(ctx context.Context, item Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling state item: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting state item: %w", err)
	}
	return nil
}

// Query returns up to limit rows in the batch with the given status,
// in sort-key order. A limit of 0 means no cap.
func (s *Store) Query(ctx context.Context, batch string, status Status, limit int) ([]Item, error) {
	return s.query(ctx, batch, &status, limit)
}

// QueryAll returns every row in the batch regardless of status.
func (s *Store) QueryAll(ctx context.Context, batch string) ([]Item, error) {
	return s.query(ctx, batch, nil, 0)
}

func (s *Store) query(ctx context.Context, batch string, status *Status, limit int) ([]Item, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#b = :batch"),
		ExpressionAttributeNames: map[string]string{
			"#b": "batch",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":batch": &types.AttributeValueMemberS{Value: batch},
		},
	}
	if status != nil {
		input.FilterExpression = aws.String("#st = :status")
		input.ExpressionAttributeNames["#st"] = "status"
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberN{
			Value: fmt.Sprintf("%d", int(*status)),
		}
	}

	var items []Item
	for {
		out, err := s.db.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying state table: %w", err)
		}

		for _, raw := range out.Items {
			var item Item
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshaling state item: %w", err)
			}
			items = append(items, item)
			if limit > 0 && len(items) == limit {
				return items, nil
			}
		}

		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Count returns the number of rows in the batch with the given status.
func (s *Store) Count(ctx context.Context, batch string, status Status) (int, error) {
	return s.count(ctx, batch, &status)
}

// CountAll returns the number of rows in the batch.
func (s *Store) CountAll(ctx context.Context, batch string) (int, error) {
	return s.count(ctx, batch, nil)
}

func (s *Store) count(ctx context.Context, batch string, status *Status) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#b = :batch"),
		Select:                 types.SelectCount,
		ExpressionAttributeNames: map[string]string{
			"#b": "batch",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":batch": &types.AttributeValueMemberS{Value: batch},
		},
	}
	if status != nil {
		input.FilterExpression = aws.String("#st = :status")
		input.ExpressionAttributeNames["#st"] = "status"
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberN{
			Value: fmt.Sprintf("%d", int(*status)),
		}
	}

	total := 0
	for {
		out, err := s.db.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("counting state table: %w", err)
		}
		total += int(out.Count)

		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
