package service

import "errors"

var (
	// ErrUnauthenticated is returned when a charge is requested without a
	// verified caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidAmount is returned when the donation amount is not positive.
	ErrInvalidAmount = errors.New("invalid donation amount")

	// ErrInternal hides gateway and other unexpected failures from donors.
	ErrInternal = errors.New("internal error")

	// ErrInvalidPaymentID is returned when a notification carries no payment id.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrUnattributedCharge is returned when an approved charge has no donor
	// external reference.
	ErrUnattributedCharge = errors.New("charge has no external reference")
)
