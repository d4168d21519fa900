package repository

import (
	"context"

	"donations/internal/domain"
)

// DonorRepository stores donor profiles used to label recorded donations.
type DonorRepository interface {
	// Upsert creates or refreshes a donor profile.
	Upsert(ctx context.Context, donor *domain.Donor) error

	// GetByID retrieves a donor by ID.
	GetByID(ctx context.Context, id string) (*domain.Donor, error)
}
