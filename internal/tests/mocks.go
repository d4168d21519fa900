package tests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"donations/internal/domain"
	"donations/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// MockGateway is an in-memory payment provider.
type MockGateway struct {
	mu      sync.RWMutex
	charges map[string]*domain.Charge
	nextID  int64

	// Counters for verification
	CreateCallCount int32
	GetCallCount    int32

	// Error injection
	CreateError error
	GetError    error

	// NextChargeID overrides the generated id of the next created charge.
	NextChargeID string

	// OnGet runs at the start of every GetCharge call.
	OnGet func(id string)

	lastRequest domain.ChargeRequest
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		charges: make(map[string]*domain.Charge),
	}
}

// AddCharge stores a charge as the provider's source of truth.
func (m *MockGateway) AddCharge(charge *domain.Charge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[charge.ID] = charge
}

// SetStatus changes the provider status of an existing charge.
func (m *MockGateway) SetStatus(id string, status domain.ChargeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if charge, ok := m.charges[id]; ok {
		charge.Status = status
	}
}

func (m *MockGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return nil, m.CreateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRequest = req

	id := m.NextChargeID
	if id == "" {
		m.nextID++
		id = "pay-" + strconv.FormatInt(m.nextID, 10)
	}
	m.NextChargeID = ""

	charge := &domain.Charge{
		ID:                id,
		Status:            domain.ChargeStatusPending,
		Amount:            req.Amount,
		PayerEmail:        req.DonorEmail,
		ExternalReference: req.DonorID,
		QRCode:            "000201-" + id,
		QRCodeBase64:      "base64-" + id,
	}
	m.charges[id] = charge

	copy := *charge
	return &copy, nil
}

func (m *MockGateway) GetCharge(ctx context.Context, id string) (*domain.Charge, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.OnGet != nil {
		m.OnGet(id)
	}
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	charge, ok := m.charges[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	copy := *charge
	return &copy, nil
}

// LastRequest returns the last charge request received.
func (m *MockGateway) LastRequest() domain.ChargeRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequest
}

// Charge returns a stored charge for test assertions.
func (m *MockGateway) Charge(id string) *domain.Charge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.charges[id]
}

// ──────────────────────────────────────────────
// MOCK DONATION LEDGER
// ──────────────────────────────────────────────

// MockDonationLedger is an in-memory DonationLedger enforcing payment id
// uniqueness.
type MockDonationLedger struct {
	mu        sync.RWMutex
	donations []*domain.Donation
	byPayment map[string]*domain.Donation

	// Counters for verification
	AppendCallCount int32

	// Error injection
	AppendError error
	GetError    error

	// SkipLookup makes GetByPaymentID always miss, so only the unique key
	// protects against duplicates.
	SkipLookup bool
}

// NewMockDonationLedger creates a new mock ledger.
func NewMockDonationLedger() *MockDonationLedger {
	return &MockDonationLedger{
		byPayment: make(map[string]*domain.Donation),
	}
}

func (m *MockDonationLedger) Append(ctx context.Context, donation *domain.Donation) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPayment[donation.PaymentID]; ok {
		return repository.ErrDuplicate
	}
	donation.ID = "donation-" + strconv.Itoa(len(m.donations)+1)
	donation.CreatedAt = time.Now().UTC()

	stored := *donation
	m.donations = append(m.donations, &stored)
	m.byPayment[donation.PaymentID] = &stored
	return nil
}

func (m *MockDonationLedger) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Donation, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	donation, ok := m.byPayment[paymentID]
	if !ok || m.SkipLookup {
		return nil, repository.ErrNotFound
	}
	copy := *donation
	return &copy, nil
}

func (m *MockDonationLedger) ListRecent(ctx context.Context, limit int) ([]*domain.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Donation, 0, limit)
	for i := len(m.donations) - 1; i >= 0 && len(result) < limit; i-- {
		copy := *m.donations[i]
		result = append(result, &copy)
	}
	return result, nil
}

// Donations returns every recorded donation in insertion order.
func (m *MockDonationLedger) Donations() []*domain.Donation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Donation(nil), m.donations...)
}

// ──────────────────────────────────────────────
// MOCK DONOR REPOSITORY
// ──────────────────────────────────────────────

// MockDonorRepository is a mock implementation of DonorRepository.
type MockDonorRepository struct {
	mu     sync.RWMutex
	donors map[string]*domain.Donor

	// Counters for verification
	UpsertCallCount int32

	// Error injection
	UpsertError error
	GetError    error
}

// NewMockDonorRepository creates a new mock donor repository.
func NewMockDonorRepository() *MockDonorRepository {
	return &MockDonorRepository{
		donors: make(map[string]*domain.Donor),
	}
}

// AddDonor adds a donor to the mock repository.
func (m *MockDonorRepository) AddDonor(donor *domain.Donor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donors[donor.ID] = donor
}

func (m *MockDonorRepository) Upsert(ctx context.Context, donor *domain.Donor) error {
	atomic.AddInt32(&m.UpsertCallCount, 1)
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *donor
	m.donors[donor.ID] = &copy
	return nil
}

func (m *MockDonorRepository) GetByID(ctx context.Context, id string) (*domain.Donor, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	donor, ok := m.donors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *donor
	return &copy, nil
}

// GetDonor returns a donor for test assertions.
func (m *MockDonorRepository) GetDonor(id string) *domain.Donor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.donors[id]
}

// ──────────────────────────────────────────────
// MOCK PAYMENT LOCKER
// ──────────────────────────────────────────────

// MockPaymentLocker mimics the token-checked SETNX lock of the Redis store.
type MockPaymentLocker struct {
	mu     sync.Mutex
	held   map[string]string
	tokens int
	Error  error

	AcquireCallCount int32
	ReleaseCallCount int32
}

// NewMockPaymentLocker creates a new mock locker.
func NewMockPaymentLocker() *MockPaymentLocker {
	return &MockPaymentLocker{held: make(map[string]string)}
}

// Hold marks a payment as locked by another instance, replacing any
// current holder as an expired-and-retaken lock would.
func (m *MockPaymentLocker) Hold(paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[paymentID] = "other-instance"
}

func (m *MockPaymentLocker) AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.Error != nil {
		return "", false, m.Error
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[paymentID]; ok {
		return "", false, nil
	}
	m.tokens++
	token := "token-" + strconv.Itoa(m.tokens)
	m.held[paymentID] = token
	return token, true, nil
}

func (m *MockPaymentLocker) ReleasePaymentLock(ctx context.Context, paymentID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[paymentID] == token {
		delete(m.held, paymentID)
	}
	return nil
}

// IsHeld reports whether a payment is currently locked.
func (m *MockPaymentLocker) IsHeld(paymentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[paymentID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK RETRY PUBLISHER
// ──────────────────────────────────────────────

// MockRetryPublisher records scheduled confirmation retries.
type MockRetryPublisher struct {
	mu      sync.Mutex
	retries []domain.ConfirmationRetry
	Error   error

	// Hang makes PublishRetry block until its context is done, like a
	// writer waiting on an unreachable broker.
	Hang bool
}

// NewMockRetryPublisher creates a new mock retry publisher.
func NewMockRetryPublisher() *MockRetryPublisher {
	return &MockRetryPublisher{}
}

func (m *MockRetryPublisher) PublishRetry(ctx context.Context, retry domain.ConfirmationRetry) error {
	if m.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.Error != nil {
		return m.Error
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = append(m.retries, retry)
	return nil
}

// Retries returns all published retries.
func (m *MockRetryPublisher) Retries() []domain.ConfirmationRetry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ConfirmationRetry(nil), m.retries...)
}

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
