package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/blankon/submission-relay/internal/submission/model"
)

// dynamoItem is the item layout of the audit table, keyed by id
type dynamoItem struct {
	ID        string `dynamodbav:"id"`
	Email     string `dynamodbav:"email"`
	Status    string `dynamodbav:"status"`
	Timestamp string `dynamodbav:"timestamp"`
}

// DynamoAuditLog appends audit records to a DynamoDB table
type DynamoAuditLog struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// NewDynamoAuditLog builds a client from the default AWS credential chain
func NewDynamoAuditLog(region, table string) (*DynamoAuditLog, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewDynamoAuditLogWithClient(dynamodb.New(sess), table)
}

// NewDynamoAuditLogWithClient wraps an existing client
func NewDynamoAuditLogWithClient(client dynamodbiface.DynamoDBAPI, table string) (*DynamoAuditLog, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is nil")
	}
	if table == "" {
		return nil, errors.New("table name is empty")
	}
	return &DynamoAuditLog{client: client, table: table}, nil
}

// Append writes one item. The id condition keeps the log append-only.
func (d *DynamoAuditLog) Append(ctx context.Context, record model.AuditRecord) error {
	item, err := dynamodbattribute.MarshalMap(dynamoItem{
		ID:        record.ID,
		Email:     record.Email,
		Status:    record.Status,
		Timestamp: record.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put audit record: %w", err)
	}

	return nil
}
