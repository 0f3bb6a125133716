package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/adchange-monitor/internal/domain"
)

// AWSOptions select the region and credentials for the AWS backends.
type AWSOptions struct {
	Region  string
	Profile string
	// Static keys take precedence over the profile and default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig loads the default credential chain, pinned to a shared
// profile or to static keys when given.
func LoadAWSConfig(ctx context.Context, o AWSOptions) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	switch {
	case o.AccessKeyID != "" && o.SecretAccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	case o.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(o.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// DynamoAPI is the subset of the DynamoDB client DynamoTable uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// sheetRowItem is one sheet row. PK is "SHEET#<name>", SK is "ROW#<n>"
// zero-padded so rows sort numerically.
type sheetRowItem struct {
	PK        string   `dynamodbav:"PK"`
	SK        string   `dynamodbav:"SK"`
	Cells     []string `dynamodbav:"Cells"`
	UpdatedAt string   `dynamodbav:"UpdatedAt"`
}

const (
	rowKeyPrefix = "ROW#"
	metaKey      = "META"
)

func rowKey(n int) string { return fmt.Sprintf("%s%09d", rowKeyPrefix, n) }

// DynamoTable stores a sheet in a single-table DynamoDB layout. A META item
// per sheet holds the row counter.
type DynamoTable struct {
	client    DynamoAPI
	tableName string
	sheet     string
}

// NewDynamoTable binds a sheet to a DynamoDB table.
func NewDynamoTable(client DynamoAPI, tableName, sheet string) *DynamoTable {
	return &DynamoTable{client: client, tableName: tableName, sheet: sheet}
}

func (t *DynamoTable) Name() string { return t.sheet }

func (t *DynamoTable) pk() string { return "SHEET#" + t.sheet }

func (t *DynamoTable) ReadAll(ctx context.Context) ([][]string, error) {
	var items []sheetRowItem
	var startKey map[string]types.AttributeValue
	for {
		out, err := t.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(t.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: t.pk()},
				":prefix": &types.AttributeValueMemberS{Value: rowKeyPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("querying sheet %s: %w", t.sheet, err)
		}

		var page []sheetRowItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling sheet %s: %w", t.sheet, err)
		}
		items = append(items, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SK < items[j].SK })

	// A failed append can leave a gap; empty rows keep coordinates stable.
	var rows [][]string
	for _, it := range items {
		n, err := strconv.Atoi(strings.TrimPrefix(it.SK, rowKeyPrefix))
		if err != nil || n < 1 {
			continue
		}
		for len(rows) < n-1 {
			rows = append(rows, []string{})
		}
		rows = append(rows, it.Cells)
	}
	return rows, nil
}

func (t *DynamoTable) AppendRow(ctx context.Context, cells []string) error {
	out, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: t.pk()},
			"SK": &types.AttributeValueMemberS{Value: metaKey},
		},
		UpdateExpression: aws.String("ADD RowCount :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("allocating row in sheet %s: %w", t.sheet, err)
	}

	var counter struct {
		RowCount int `dynamodbav:"RowCount"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return fmt.Errorf("reading row counter: %w", err)
	}

	return t.putRow(ctx, counter.RowCount, cells, false)
}

func (t *DynamoTable) putRow(ctx context.Context, n int, cells []string, mustExist bool) error {
	if cells == nil {
		cells = []string{}
	}
	av, err := attributevalue.MarshalMap(sheetRowItem{
		PK:        t.pk(),
		SK:        rowKey(n),
		Cells:     cells,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}

	in := &dynamodb.PutItemInput{TableName: aws.String(t.tableName), Item: av}
	if mustExist {
		in.ConditionExpression = aws.String("attribute_exists(PK)")
	}
	if _, err := t.client.PutItem(ctx, in); err != nil {
		return fmt.Errorf("putting row %d in sheet %s: %w", n, t.sheet, err)
	}
	return nil
}

func (t *DynamoTable) SetCell(ctx context.Context, row, col int, value string) error {
	if err := validateCoords(row, col); err != nil {
		return err
	}

	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: t.pk()},
			"SK": &types.AttributeValueMemberS{Value: rowKey(row)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("getting row %d in sheet %s: %w", row, t.sheet, err)
	}
	if len(out.Item) == 0 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, t.sheet, row)
	}

	var item sheetRowItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return fmt.Errorf("unmarshaling row: %w", err)
	}
	return t.putRow(ctx, row, setPadded(item.Cells, col, value), true)
}

// S3API is the subset of the S3 client S3Archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps a raw copy of every fetched change event batch.
type S3Archive struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Archive creates an archive writing under prefix in bucket.
func NewS3Archive(client S3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

type archivedBatch struct {
	Channel   string               `json:"channel"`
	FetchedAt time.Time            `json:"fetched_at"`
	Count     int                  `json:"count"`
	Events    []domain.ChangeEvent `json:"events"`
}

// ArchiveKey is the object key for a batch: prefix/YYYY/MM/DD/channel-HHMMSS.json.
func (a *S3Archive) ArchiveKey(channel string, fetchedAt time.Time) string {
	ts := fetchedAt.UTC()
	return fmt.Sprintf("%s/%s/%s-%s.json",
		a.prefix, ts.Format("2006/01/02"), strings.ToLower(channel), ts.Format("150405"))
}

// Archive writes one channel's fetched events and returns the object key.
func (a *S3Archive) Archive(ctx context.Context, channel string, fetchedAt time.Time, events []domain.ChangeEvent) (string, error) {
	data, err := json.Marshal(archivedBatch{
		Channel:   channel,
		FetchedAt: fetchedAt.UTC(),
		Count:     len(events),
		Events:    events,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling archive: %w", err)
	}

	key := a.ArchiveKey(channel, fetchedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading archive to S3: %w", err)
	}
	return key, nil
}
