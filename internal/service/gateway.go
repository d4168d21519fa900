package service

import (
	"context"

	"donations/internal/domain"
)

// Gateway is the payment provider used to create and look up charges.
type Gateway interface {
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.Charge, error)
	GetCharge(ctx context.Context, id string) (*domain.Charge, error)
}
