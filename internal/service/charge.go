package service

import (
	"context"
	"log/slog"
	"math"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"donations/internal/domain"
	"donations/internal/logging"
	"donations/internal/repository"
)

// providerKeyNamespace derives provider idempotency keys from caller-scoped
// request keys.
var providerKeyNamespace = uuid.MustParse("4f6c2a8e-1d3b-5e7f-9a0c-b2d4e6f81a3c")

var (
	chargesCreatedCounter         = metrics.GetOrCreateCounter(`charges_total{result="created"}`)
	chargesUnauthenticatedCounter = metrics.GetOrCreateCounter(`charges_total{result="unauthenticated"}`)
	chargesInvalidCounter         = metrics.GetOrCreateCounter(`charges_total{result="invalid_argument"}`)
	chargesFailedCounter          = metrics.GetOrCreateCounter(`charges_total{result="internal"}`)
)

// ChargeService turns an authenticated donation request into a PIX charge.
type ChargeService struct {
	gateway    Gateway
	donors     repository.DonorRepository
	webhookURL string
	logger     *slog.Logger
}

// NewChargeService creates a new ChargeService. webhookURL is the
// notification URL attached to every created charge.
func NewChargeService(gateway Gateway, donors repository.DonorRepository, webhookURL string, logger *slog.Logger) *ChargeService {
	return &ChargeService{
		gateway:    gateway,
		donors:     donors,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// RequestChargeInput contains the parameters for requesting a charge.
type RequestChargeInput struct {
	Caller         *domain.Identity
	Amount         float64
	IdempotencyKey string
}

// RequestCharge creates exactly one provider charge bound to the caller and
// returns its QR payload. Gateway failures are logged and reported as
// ErrInternal.
func (s *ChargeService) RequestCharge(ctx context.Context, in RequestChargeInput) (*domain.QRPayload, error) {
	if in.Caller == nil || in.Caller.ID == "" {
		chargesUnauthenticatedCounter.Inc()
		return nil, ErrUnauthenticated
	}

	if !(in.Amount > 0) || math.IsInf(in.Amount, 1) {
		chargesInvalidCounter.Inc()
		return nil, ErrInvalidAmount
	}

	ctx = logging.AppendCtx(ctx, slog.String("donorId", in.Caller.ID))

	// Keep the donor profile fresh so the webhook can label the donation.
	// A failure here only degrades the label to the anonymous default.
	if err := s.donors.Upsert(ctx, &domain.Donor{
		ID:          in.Caller.ID,
		Email:       in.Caller.Email,
		DisplayName: in.Caller.Name,
		PhotoURL:    in.Caller.Picture,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to store donor profile", "error", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, domain.ChargeRequest{
		Amount:          in.Amount,
		DonorID:         in.Caller.ID,
		DonorEmail:      in.Caller.Email,
		NotificationURL: s.webhookURL,
		IdempotencyKey:  ProviderIdempotencyKey(in.Caller.ID, in.IdempotencyKey),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create charge at payment gateway", "error", err, "amount", in.Amount)
		chargesFailedCounter.Inc()
		return nil, ErrInternal
	}

	if charge.ID == "" {
		s.logger.ErrorContext(ctx, "payment gateway returned a charge without id")
		chargesFailedCounter.Inc()
		return nil, ErrInternal
	}

	s.logger.InfoContext(ctx, "charge created", "paymentId", charge.ID, "amount", in.Amount)
	chargesCreatedCounter.Inc()

	return &domain.QRPayload{
		PaymentID:    charge.ID,
		QRCode:       charge.QRCode,
		QRCodeBase64: charge.QRCodeBase64,
	}, nil
}

// ProviderIdempotencyKey maps a caller's Idempotency-Key to the key sent to
// the provider. Provider keys are shared by every donor on the same access
// token, so the caller id is folded in. An empty key stays empty.
func ProviderIdempotencyKey(callerID, key string) string {
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(providerKeyNamespace, []byte(callerID+":"+key)).String()
}
