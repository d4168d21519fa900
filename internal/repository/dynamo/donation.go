package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"donations/internal/domain"
	"donations/internal/repository"
)

// API is the subset of the DynamoDB client used by the ledger.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// createdAtMillisAttr is the numeric sort key of the recent-donations index.
// The index partition key is status, which every recorded donation shares.
const createdAtMillisAttr = "created_at_ms"

var _ API = (*dynamodb.Client)(nil)

// DonationLedger implements repository.DonationLedger on a DynamoDB table
// whose partition key is payment_id. Recent donations are read from a
// global secondary index keyed by status and created_at_ms; without one the
// ledger falls back to a full scan.
type DonationLedger struct {
	client      API
	tableName   string
	recentIndex string
	now         func() time.Time
}

// NewDonationLedger creates a new DynamoDB donation ledger. recentIndex names
// the status/created_at_ms index and may be empty.
func NewDonationLedger(client API, tableName, recentIndex string) *DonationLedger {
	return &DonationLedger{
		client:      client,
		tableName:   tableName,
		recentIndex: recentIndex,
		now:         time.Now,
	}
}

// Append writes the donation only if no item exists for its payment id.
func (r *DonationLedger) Append(ctx context.Context, donation *domain.Donation) error {
	if donation.ID == "" {
		donation.ID = uuid.New().String()
	}
	donation.CreatedAt = r.now().UTC()

	item, err := attributevalue.MarshalMap(donation)
	if err != nil {
		return fmt.Errorf("failed to marshal donation: %w", err)
	}
	item[createdAtMillisAttr] = &dynamodbtypes.AttributeValueMemberN{
		Value: strconv.FormatInt(donation.CreatedAt.UnixMilli(), 10),
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(payment_id)"),
	})
	if err != nil {
		var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to save donation to DynamoDB: %w", err)
	}

	return nil
}

// GetByPaymentID retrieves the donation recorded for a payment.
func (r *DonationLedger) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Donation, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]dynamodbtypes.AttributeValue{
			"payment_id": &dynamodbtypes.AttributeValueMemberS{Value: paymentID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}

	if result.Item == nil {
		return nil, repository.ErrNotFound
	}

	var donation domain.Donation
	if err := attributevalue.UnmarshalMap(result.Item, &donation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal donation: %w", err)
	}

	return &donation, nil
}

// ListRecent returns up to limit donations, newest first.
func (r *DonationLedger) ListRecent(ctx context.Context, limit int) ([]*domain.Donation, error) {
	if limit <= 0 {
		return nil, nil
	}
	if r.recentIndex == "" {
		return r.scanRecent(ctx, limit)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.recentIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":status": &dynamodbtypes.AttributeValueMemberS{Value: domain.DonationStatusVerified},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query recent donations: %w", err)
	}

	return unmarshalDonations(result.Items)
}

// scanRecent reads the whole table and sorts in memory. It only suits small
// tables provisioned without the recent-donations index.
func (r *DonationLedger) scanRecent(ctx context.Context, limit int) ([]*domain.Donation, error) {
	var donations []*domain.Donation
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName: aws.String(r.tableName),
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donations: %w", err)
		}

		page, err := unmarshalDonations(result.Items)
		if err != nil {
			return nil, err
		}
		donations = append(donations, page...)

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	sort.Slice(donations, func(i, j int) bool {
		return donations[i].CreatedAt.After(donations[j].CreatedAt)
	})
	if len(donations) > limit {
		donations = donations[:limit]
	}
	return donations, nil
}

func unmarshalDonations(items []map[string]dynamodbtypes.AttributeValue) ([]*domain.Donation, error) {
	donations := make([]*domain.Donation, 0, len(items))
	for _, item := range items {
		var donation domain.Donation
		if err := attributevalue.UnmarshalMap(item, &donation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal donation: %w", err)
		}
		donations = append(donations, &donation)
	}
	return donations, nil
}
