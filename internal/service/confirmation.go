package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"donations/internal/domain"
	"donations/internal/logging"
	"donations/internal/repository"
)

const (
	defaultLockTTL    = 30 * time.Second
	defaultRetryDelay = 30 * time.Second

	defaultPublishTimeout = 2 * time.Second
)

// Outcome describes what happened to a single notification.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeNotApproved  Outcome = "not_approved"
	OutcomeRecorded     Outcome = "recorded"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeInProgress   Outcome = "in_progress"
	OutcomeUnattributed Outcome = "unattributed"
	OutcomeFailed       Outcome = "failed"
)

var donationsRecordedCounter = metrics.GetOrCreateCounter(`donations_recorded_total`)

func countOutcome(o Outcome) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`webhook_notifications_total{result=%q}`, o)).Inc()
}

// Notification is the query the provider sends to the webhook. Either Topic
// or Type names the event kind, and either ID or DataID carries the payment id.
type Notification struct {
	Topic  string
	Type   string
	ID     string
	DataID string
}

// IsPayment reports whether the notification is about a payment.
func (n Notification) IsPayment() bool {
	return n.Topic == "payment" || n.Type == "payment"
}

// PaymentID returns the payment id carried by the notification.
func (n Notification) PaymentID() string {
	if id := strings.TrimSpace(n.ID); id != "" {
		return id
	}
	return strings.TrimSpace(n.DataID)
}

// PaymentLocker serializes processing of the same payment across instances.
type PaymentLocker interface {
	AcquirePaymentLock(ctx context.Context, paymentID string, ttl time.Duration) (token string, acquired bool, err error)
	ReleasePaymentLock(ctx context.Context, paymentID, token string) error
}

// RetryPublisher schedules a confirmation to be attempted again.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, retry domain.ConfirmationRetry) error
}

// ConfirmationOptions tunes ConfirmationService. Zero values use defaults.
type ConfirmationOptions struct {
	LockTTL     time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	// PublishTimeout bounds scheduling a retry, which runs inside the
	// webhook request.
	PublishTimeout time.Duration
}

// ConfirmationService verifies provider notifications and records approved
// donations exactly once per payment id.
type ConfirmationService struct {
	gateway     Gateway
	ledger      repository.DonationLedger
	donors      repository.DonorRepository
	locks       PaymentLocker
	retries     RetryPublisher
	logger      *slog.Logger
	lockTTL     time.Duration
	retryDelay  time.Duration
	maxAttempts int
	publishWait time.Duration
	now         func() time.Time
}

// NewConfirmationService creates a new ConfirmationService. locks and retries
// may be nil, which disables cross-instance locking and retry scheduling.
func NewConfirmationService(
	gateway Gateway,
	ledger repository.DonationLedger,
	donors repository.DonorRepository,
	locks PaymentLocker,
	retries RetryPublisher,
	logger *slog.Logger,
	opts ConfirmationOptions,
) *ConfirmationService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &ConfirmationService{
		gateway:     gateway,
		ledger:      ledger,
		donors:      donors,
		locks:       locks,
		retries:     retries,
		logger:      logger,
		lockTTL:     opts.LockTTL,
		retryDelay:  opts.RetryDelay,
		maxAttempts: opts.MaxAttempts,
		publishWait: opts.PublishTimeout,
		now:         time.Now,
	}
}

// HandleNotification processes one webhook delivery. It never fails: every
// error is logged and, when transient, handed to the retry queue, so the
// provider always gets an acknowledgement.
func (s *ConfirmationService) HandleNotification(ctx context.Context, n Notification) Outcome {
	if !n.IsPayment() {
		countOutcome(OutcomeIgnored)
		return OutcomeIgnored
	}

	paymentID := n.PaymentID()
	if paymentID == "" {
		s.logger.WarnContext(ctx, "payment notification without id", "error", ErrInvalidPaymentID)
		countOutcome(OutcomeIgnored)
		return OutcomeIgnored
	}

	ctx = logging.AppendCtx(ctx, slog.String("paymentId", paymentID))

	outcome, err := s.process(ctx, paymentID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to confirm payment", "error", err)
		if outcome == OutcomeFailed {
			s.scheduleRetry(ctx, paymentID, 1)
		}
	}

	countOutcome(outcome)
	return outcome
}

// Retry re-runs a confirmation taken from the retry queue, rescheduling it
// until the configured attempt limit is reached.
func (s *ConfirmationService) Retry(ctx context.Context, retry domain.ConfirmationRetry) error {
	ctx = logging.AppendCtx(ctx, slog.String("paymentId", retry.PaymentID))
	ctx = logging.AppendCtx(ctx, slog.Int("attempt", retry.Attempt))

	outcome, err := s.process(ctx, retry.PaymentID)
	if err == nil {
		s.logger.InfoContext(ctx, "retried confirmation finished", "outcome", outcome)
		return nil
	}

	s.logger.ErrorContext(ctx, "retried confirmation failed", "error", err)
	if outcome == OutcomeFailed {
		if s.maxAttempts > 0 && retry.Attempt >= s.maxAttempts {
			s.logger.ErrorContext(ctx, "max confirmation attempts reached, giving up")
			return err
		}
		s.scheduleRetry(ctx, retry.PaymentID, retry.Attempt+1)
	}
	return err
}

func (s *ConfirmationService) scheduleRetry(ctx context.Context, paymentID string, attempt int) {
	if s.retries == nil {
		return
	}
	retry := domain.ConfirmationRetry{
		PaymentID: paymentID,
		Attempt:   attempt,
		NotBefore: s.now().Add(time.Duration(attempt) * s.retryDelay),
	}
	publishCtx, cancel := context.WithTimeout(ctx, s.publishWait)
	defer cancel()

	if err := s.retries.PublishRetry(publishCtx, retry); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule confirmation retry", "error", err)
	}
}

// process holds the payment lock around Confirm.
func (s *ConfirmationService) process(ctx context.Context, paymentID string) (Outcome, error) {
	if s.locks != nil {
		token, acquired, err := s.locks.AcquirePaymentLock(ctx, paymentID, s.lockTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "payment lock unavailable, proceeding without it", "error", err)
		case !acquired:
			s.logger.InfoContext(ctx, "payment is already being confirmed elsewhere")
			return OutcomeInProgress, nil
		default:
			defer func() {
				if err := s.locks.ReleasePaymentLock(context.WithoutCancel(ctx), paymentID, token); err != nil {
					s.logger.WarnContext(ctx, "failed to release payment lock", "error", err)
				}
			}()
		}
	}

	return s.Confirm(ctx, paymentID)
}

// Confirm fetches the authoritative charge and, if approved, appends a
// verified donation. The notification itself is never trusted as proof of
// payment. A non-nil error with OutcomeFailed is worth retrying.
func (s *ConfirmationService) Confirm(ctx context.Context, paymentID string) (Outcome, error) {
	if paymentID == "" {
		return OutcomeIgnored, ErrInvalidPaymentID
	}

	if existing, err := s.ledger.GetByPaymentID(ctx, paymentID); err == nil && existing != nil {
		return OutcomeDuplicate, nil
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.WarnContext(ctx, "ledger lookup failed, relying on unique key", "error", err)
	}

	charge, err := s.gateway.GetCharge(ctx, paymentID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("get charge: %w", err)
	}

	if charge.Status != domain.ChargeStatusApproved {
		s.logger.InfoContext(ctx, "charge not approved", "status", charge.Status)
		return OutcomeNotApproved, nil
	}

	donorID := charge.ExternalReference
	if donorID == "" {
		return OutcomeUnattributed, ErrUnattributedCharge
	}

	donor, err := s.donors.GetByID(ctx, donorID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return OutcomeFailed, fmt.Errorf("get donor: %w", err)
		}
		donor = nil
	}

	recordedID := charge.ID
	if recordedID == "" {
		recordedID = paymentID
	}

	donation := &domain.Donation{
		UserID:     donorID,
		UserName:   donor.PublicName(),
		UserPhoto:  donor.PublicPhoto(),
		Amount:     charge.Amount,
		Status:     domain.DonationStatusVerified,
		PaymentID:  recordedID,
		PayerEmail: charge.PayerEmail,
	}

	if err := s.ledger.Append(ctx, donation); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.InfoContext(ctx, "donation already recorded")
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, fmt.Errorf("append donation: %w", err)
	}

	donationsRecordedCounter.Inc()
	s.logger.InfoContext(ctx, "donation verified and recorded", "donorId", donorID, "amount", donation.Amount)
	return OutcomeRecorded, nil
}
