package dynamo

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donations/internal/domain"
	"donations/internal/repository"
)

// fakeTable emulates conditional puts keyed by payment_id.
type fakeTable struct {
	mu      sync.Mutex
	items   map[string]map[string]dynamodbtypes.AttributeValue
	putErr  error
	scanned int
	queried int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]dynamodbtypes.AttributeValue)}
}

func (f *fakeTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := params.Item["payment_id"].(*dynamodbtypes.AttributeValueMemberS).Value
	if _, exists := f.items[key]; exists && params.ConditionExpression != nil {
		return nil, &dynamodbtypes.ConditionalCheckFailedException{Message: strPtr("conditional request failed")}
	}
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := params.Key["payment_id"].(*dynamodbtypes.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeTable) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.scanned++
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// Query serves the status/created_at_ms index: matching status, newest first.
func (f *fakeTable) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queried++
	status := params.ExpressionAttributeValues[":status"].(*dynamodbtypes.AttributeValueMemberS).Value

	var items []map[string]dynamodbtypes.AttributeValue
	for _, item := range f.items {
		if item["status"].(*dynamodbtypes.AttributeValueMemberS).Value == status {
			items = append(items, item)
		}
	}
	millis := func(item map[string]dynamodbtypes.AttributeValue) int64 {
		n, _ := strconv.ParseInt(item[createdAtMillisAttr].(*dynamodbtypes.AttributeValueMemberN).Value, 10, 64)
		return n
	}
	sort.Slice(items, func(i, j int) bool {
		if params.ScanIndexForward != nil && !*params.ScanIndexForward {
			return millis(items[i]) > millis(items[j])
		}
		return millis(items[i]) < millis(items[j])
	})
	if params.Limit != nil && len(items) > int(*params.Limit) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func strPtr(s string) *string { return &s }

func newDonation(paymentID string) *domain.Donation {
	return &domain.Donation{
		UserID:     "u1",
		UserName:   "Ana",
		UserPhoto:  domain.AnonymousDonorPhoto,
		Amount:     50.00,
		Status:     domain.DonationStatusVerified,
		PaymentID:  paymentID,
		PayerEmail: "a@b.com",
	}
}

func TestDonationLedger_AppendAndGet(t *testing.T) {
	table := newFakeTable()
	ledger := NewDonationLedger(table, "donations", "")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	donation := newDonation("pay123")
	require.NoError(t, ledger.Append(context.Background(), donation))
	assert.NotEmpty(t, donation.ID)
	assert.Equal(t, fixed, donation.CreatedAt)

	stored, err := ledger.GetByPaymentID(context.Background(), "pay123")
	require.NoError(t, err)
	assert.Equal(t, donation, stored)
}

func TestDonationLedger_AppendDuplicate(t *testing.T) {
	ledger := NewDonationLedger(newFakeTable(), "donations", "")

	require.NoError(t, ledger.Append(context.Background(), newDonation("pay123")))
	err := ledger.Append(context.Background(), newDonation("pay123"))
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestDonationLedger_AppendStorageError(t *testing.T) {
	table := newFakeTable()
	table.putErr = errors.New("throttled")
	ledger := NewDonationLedger(table, "donations", "")

	err := ledger.Append(context.Background(), newDonation("pay123"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicate)
}

func TestDonationLedger_GetMissing(t *testing.T) {
	ledger := NewDonationLedger(newFakeTable(), "donations", "")

	_, err := ledger.GetByPaymentID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func appendAt(t *testing.T, ledger *DonationLedger, base time.Time, ids ...string) {
	t.Helper()
	for i, id := range ids {
		at := base.Add(time.Duration(i) * time.Minute)
		ledger.now = func() time.Time { return at }
		require.NoError(t, ledger.Append(context.Background(), newDonation(id)))
	}
}

func TestDonationLedger_ListRecent_UsesIndex(t *testing.T) {
	table := newFakeTable()
	ledger := NewDonationLedger(table, "donations", "status-created_at_ms-index")
	appendAt(t, ledger, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "pay-1", "pay-2", "pay-3")

	donations, err := ledger.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, donations, 2)
	assert.Equal(t, "pay-3", donations[0].PaymentID)
	assert.Equal(t, "pay-2", donations[1].PaymentID)
	assert.Equal(t, 1, table.queried)
	assert.Zero(t, table.scanned)
}

func TestDonationLedger_ListRecent_ScanFallback(t *testing.T) {
	table := newFakeTable()
	ledger := NewDonationLedger(table, "donations", "")
	appendAt(t, ledger, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), "pay-1", "pay-2", "pay-3")

	donations, err := ledger.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, donations, 2)
	assert.Equal(t, "pay-3", donations[0].PaymentID)
	assert.Equal(t, "pay-2", donations[1].PaymentID)
	assert.Zero(t, table.queried)
	assert.Equal(t, 1, table.scanned)
}
