package repository

import (
	"context"

	"donations/internal/domain"
)

// DonationLedger is the append-only store of verified donations, keyed by
// provider payment id.
type DonationLedger interface {
	// Append records a donation. It returns ErrDuplicate if a donation with
	// the same PaymentID already exists. CreatedAt is assigned by the store.
	Append(ctx context.Context, donation *domain.Donation) error

	// GetByPaymentID retrieves the donation recorded for a payment.
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Donation, error)

	// ListRecent returns up to limit donations, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Donation, error)
}
