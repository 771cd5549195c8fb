package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mercator-hq/tokenmeter/pkg/usage"
)

// DynamoDB table layout.
const (
	AttrPartition     = "date_partition"
	AttrSort          = "timestamp_agent"
	AttrTimestamp     = "timestamp"
	AttrAgentID       = "agent_id"
	AttrIncidentID    = "incident_id"
	AttrTTL           = "ttl"
	AgentIndexName    = "agent-id-timestamp-index"
	IncidentIndexName = "incident-id-timestamp-index"
	DefaultTableName  = "bedrock-token-usage"
)

const (
	maxUnprocessedTry  = 5
	unprocessedBackoff = 50 * time.Millisecond
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// DynamoStore stores usage records in a DynamoDB table.
type DynamoStore struct {
	client  DynamoAPI
	table   string
	opts    options
	backoff time.Duration
	logger  *slog.Logger
}

// NewDynamoStore creates a store for table. An empty table name selects
// DefaultTableName.
func NewDynamoStore(client DynamoAPI, table string, opts ...Option) *DynamoStore {
	if table == "" {
		table = DefaultTableName
	}
	return &DynamoStore{
		client:  client,
		table:   table,
		opts:    newOptions(opts),
		backoff: unprocessedBackoff,
		logger:  slog.Default().With("component", "store.dynamodb"),
	}
}

// Table returns the table name.
func (s *DynamoStore) Table() string {
	return s.table
}

// Put implements usage.Writer.
func (s *DynamoStore) Put(ctx context.Context, rec *usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(newItem(rec, s.opts.expiresAt()))
	if err != nil {
		return usage.NewStorageError(BackendDynamoDB, "marshal", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return usage.NewStorageError(BackendDynamoDB, "put", err)
	}
	return nil
}

// BatchPut implements usage.Writer. Records are written in chunks of the
// configured batch size; unprocessed items are retried a bounded number of
// times and then rejected. The returned error joins the errors of failed
// requests.
func (s *DynamoStore) BatchPut(ctx context.Context, records []*usage.Record) (*usage.BatchResult, error) {
	result := &usage.BatchResult{}
	valid := splitValid(records, result)
	expires := s.opts.expiresAt()

	var errs []error
	for _, batch := range chunk(valid, s.opts.batchSize) {
		// BatchWriteItem rejects duplicate keys within one request, so the
		// last record per key wins, as it would with sequential puts.
		byKey := make(map[string][]*usage.Record)
		var order []string
		requests := make(map[string]types.WriteRequest)
		for _, rec := range batch {
			it := newItem(rec, expires)
			k := it.key()
			av, err := attributevalue.MarshalMap(it)
			if err != nil {
				result.Reject(rec)
				errs = append(errs, usage.NewStorageError(BackendDynamoDB, "marshal", err))
				continue
			}
			if _, seen := byKey[k]; !seen {
				order = append(order, k)
			}
			byKey[k] = append(byKey[k], rec)
			requests[k] = types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}
		}

		pending := make([]types.WriteRequest, 0, len(order))
		for _, k := range order {
			pending = append(pending, requests[k])
		}

		unprocessed, err := s.writeBatch(ctx, pending)
		if err != nil {
			for _, k := range order {
				result.Reject(byKey[k]...)
			}
			errs = append(errs, usage.NewStorageError(BackendDynamoDB, "batch_put", err))
			continue
		}

		failed := make(map[string]bool, len(unprocessed))
		for _, req := range unprocessed {
			if req.PutRequest != nil {
				failed[keyOf(req.PutRequest.Item)] = true
			}
		}
		for _, k := range order {
			if failed[k] {
				result.Reject(byKey[k]...)
			} else {
				result.Succeeded += len(byKey[k])
			}
		}
	}

	s.logger.DebugContext(ctx, "batch put completed",
		"table", s.table,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, errors.Join(errs...)
}

// writeBatch sends write requests and retries unprocessed items with a
// linear backoff. It returns the requests that were never processed.
func (s *DynamoStore) writeBatch(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	for attempt := 0; len(requests) > 0; attempt++ {
		if attempt > 0 {
			if attempt >= maxUnprocessedTry {
				return requests, nil
			}
			select {
			case <-ctx.Done():
				return requests, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: requests},
		})
		if err != nil {
			return requests, err
		}
		requests = out.UnprocessedItems[s.table]
	}
	return nil, nil
}

// ByAgent implements usage.Reader through the agent index.
func (s *DynamoStore) ByAgent(ctx context.Context, agentID string, dates *usage.DateRange, limit int) ([]*usage.Record, error) {
	return s.queryIndex(ctx, AgentIndexName, AttrAgentID, agentID, dates, limit)
}

// ByIncident implements usage.Reader through the incident index.
func (s *DynamoStore) ByIncident(ctx context.Context, incidentID string, limit int) ([]*usage.Record, error) {
	return s.queryIndex(ctx, IncidentIndexName, AttrIncidentID, incidentID, nil, limit)
}

func (s *DynamoStore) queryIndex(ctx context.Context, index, attr, value string, dates *usage.DateRange, limit int) ([]*usage.Record, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String(fmt.Sprintf("%s = :key", attr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{":key": &types.AttributeValueMemberS{Value: value}},
		ScanIndexForward:          aws.Bool(false),
	}
	if dates != nil {
		start, end := dates.Bounds()
		input.KeyConditionExpression = aws.String(fmt.Sprintf("%s = :key AND #ts BETWEEN :start AND :end", attr))
		input.ExpressionAttributeNames = map[string]string{"#ts": AttrTimestamp}
		input.ExpressionAttributeValues[":start"] = &types.AttributeValueMemberS{Value: formatTimestamp(start)}
		input.ExpressionAttributeValues[":end"] = &types.AttributeValueMemberS{Value: formatTimestamp(end)}
	}

	records, err := s.query(ctx, input, limit)
	if err != nil {
		return nil, usage.NewQueryError(index, err)
	}
	return records, nil
}

// ByDateRange implements usage.Reader. Day partitions are read newest
// first so that the limit keeps the most recent records.
func (s *DynamoStore) ByDateRange(ctx context.Context, start, end time.Time, agentID string, limit int) ([]*usage.Record, error) {
	days := usage.NewDateRange(start, end).Days()

	var all []*usage.Record
	for i := len(days) - 1; i >= 0; i-- {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(all)
			if remaining <= 0 {
				break
			}
		}

		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    aws.String(AttrPartition + " = :day"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":day": &types.AttributeValueMemberS{Value: days[i]}},
			ScanIndexForward:          aws.Bool(false),
		}
		if agentID != "" {
			input.FilterExpression = aws.String(AttrAgentID + " = :agent")
			input.ExpressionAttributeValues[":agent"] = &types.AttributeValueMemberS{Value: agentID}
		}

		records, err := s.query(ctx, input, remaining)
		if err != nil {
			return nil, usage.NewQueryError(days[i], err)
		}
		all = append(all, records...)
	}

	return truncate(all, limit), nil
}

// query runs a query to completion or until limit records are collected.
func (s *DynamoStore) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]*usage.Record, error) {
	var records []*usage.Record
	for {
		if limit > 0 {
			input.Limit = aws.Int32(int32(limit - len(records)))
		}

		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		for _, it := range items {
			rec, err := it.record()
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(records) >= limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return truncate(records, limit), nil
}

// PurgeExpired scans for items whose ttl has passed and deletes them. The
// table's TTL reaper normally does this; scanning is expensive.
func (s *DynamoStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.opts.now().Unix()
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String("#ttl < :now"),
		ExpressionAttributeNames:  map[string]string{"#ttl": AttrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)}},
		ProjectionExpression:      aws.String(AttrPartition + ", " + AttrSort),
	}

	var deleted int64
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return deleted, usage.NewStorageError(BackendDynamoDB, "purge_scan", err)
		}

		deletes := make([]types.WriteRequest, 0, len(out.Items))
		for _, it := range out.Items {
			deletes = append(deletes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
				AttrPartition: it[AttrPartition],
				AttrSort:      it[AttrSort],
			}}})
		}
		for _, batch := range chunk(deletes, MaxBatchSize) {
			unprocessed, err := s.writeBatch(ctx, batch)
			deleted += int64(len(batch) - len(unprocessed))
			if err != nil {
				return deleted, usage.NewStorageError(BackendDynamoDB, "purge_delete", err)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	s.logger.InfoContext(ctx, "purged expired records", "table", s.table, "deleted_count", deleted)
	return deleted, nil
}

// Close implements usage.Store. The client owns no resources.
func (s *DynamoStore) Close() error {
	return nil
}

func keyOf(av map[string]types.AttributeValue) string {
	var pk, sk string
	if v, ok := av[AttrPartition].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	if v, ok := av[AttrSort].(*types.AttributeValueMemberS); ok {
		sk = v.Value
	}
	return pk + "|" + sk
}
