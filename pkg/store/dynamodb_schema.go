package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"mercator-hq/tokenmeter/pkg/usage"
)

// CreateTableInput returns the table definition: date partition and time
// sort keys, agent and incident indexes on the timestamp, on-demand billing.
func CreateTableInput(table string) *dynamodb.CreateTableInput {
	str := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
	}
	index := func(name, hash string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(AttrTimestamp), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}
	}

	return &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			str(AttrPartition), str(AttrSort), str(AttrTimestamp), str(AttrAgentID), str(AttrIncidentID),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrPartition), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(AttrSort), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			index(AgentIndexName, AttrAgentID),
			index(IncidentIndexName, AttrIncidentID),
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

// CreateTable creates the table if it does not exist, waits for it to become
// active for at most maxWait, and enables TTL on the ttl attribute.
func (s *DynamoStore) CreateTable(ctx context.Context, maxWait time.Duration) error {
	_, err := s.client.CreateTable(ctx, CreateTableInput(s.table))
	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "created table", "table", s.table)
	case errors.As(err, &inUse):
		s.logger.InfoContext(ctx, "table already exists", "table", s.table)
	default:
		return usage.NewStorageError(BackendDynamoDB, "create_table", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, maxWait); err != nil {
		return usage.NewStorageError(BackendDynamoDB, "wait_table", err)
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(s.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(AttrTTL),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil && !isTTLAlreadyEnabled(err) {
		return usage.NewStorageError(BackendDynamoDB, "update_ttl", err)
	}

	s.logger.InfoContext(ctx, "table ready", "table", s.table, "ttl_attribute", AttrTTL)
	return nil
}

// isTTLAlreadyEnabled reports the ValidationException DynamoDB returns when
// TTL is already enabled on the table.
func isTTLAlreadyEnabled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "already enabled")
	}
	return false
}
