package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/Clever/kayvee-go/v7/logger"

	"github.com/lockbox-app/lockbox-migrate/resources"
	"github.com/lockbox-app/lockbox-migrate/store"
)

var log = logger.New("lockbox-migrate")

// DynamoDB implements store.TableClient against the AWS data plane.
type DynamoDB struct {
	ddb dynamodbiface.DynamoDBAPI
}

// New returns a TableClient backed by the given DynamoDB API.
func New(ddb dynamodbiface.DynamoDBAPI) DynamoDB {
	return DynamoDB{ddb: ddb}
}

// ScanAll pages through the table with a consistent read and feeds every
// item to fn. Pagination follows LastEvaluatedKey until the store stops
// returning one.
func (d DynamoDB) ScanAll(ctx context.Context, table string, fn func(resources.Record) bool) (int64, error) {
	var count int64
	err := d.ddb.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(table),
	}, func(out *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range out.Items {
			if !fn(resources.Record(item)) {
				return false
			}
			count++
		}
		log.InfoD("scan-page", logger.M{
			"table": table,
			"items": len(out.Items),
			"total": count,
		})
		return true
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			if awsErr.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return 0, store.NewNotFound(table)
			}
		}
		return count, err
	}
	return count, nil
}

// PutItem upserts the record. Failures are classified into a
// *store.WriteFailure so the restore loop can count them without aborting.
func (d DynamoDB) PutItem(ctx context.Context, table string, rec resources.Record) error {
	_, err := d.ddb.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      map[string]*dynamodb.AttributeValue(rec),
	})
	if err == nil {
		return nil
	}
	reason := store.ReasonNetwork
	if awsErr, ok := err.(awserr.Error); ok {
		switch awsErr.Code() {
		case dynamodb.ErrCodeProvisionedThroughputExceededException,
			dynamodb.ErrCodeRequestLimitExceeded,
			"ThrottlingException":
			reason = store.ReasonThrottled
		case "ValidationException",
			dynamodb.ErrCodeConditionalCheckFailedException:
			reason = store.ReasonValidation
		}
	}
	return &store.WriteFailure{Table: table, Reason: reason, Cause: err}
}

// Describe maps the DescribeTable response onto the readiness trichotomy.
func (d DynamoDB) Describe(ctx context.Context, table string) (store.ReadinessState, error) {
	out, err := d.ddb.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			if awsErr.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return store.ReadinessState{Status: store.StatusNotFound}, nil
			}
		}
		return store.ReadinessState{}, err
	}
	status := aws.StringValue(out.Table.TableStatus)
	if status == dynamodb.TableStatusActive {
		return store.ReadinessState{Status: store.StatusActive}, nil
	}
	return store.ReadinessState{Status: store.StatusTransitioning, Detail: status}, nil
}

// DeleteTable removes the table; deleting a table that does not exist is a
// success.
func (d DynamoDB) DeleteTable(ctx context.Context, table string) error {
	_, err := d.ddb.DeleteTableWithContext(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			if awsErr.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return nil
			}
		}
		return err
	}
	return nil
}
