package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrGateway is wrapped by every failure that originates at the provider:
	// transport errors, non-2xx responses and malformed bodies.
	ErrGateway = errors.New("payment gateway error")

	// ErrInvalidRequest is returned before any remote call when the charge
	// input is rejected locally.
	ErrInvalidRequest = errors.New("invalid charge request")
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mercadopago: status %d", e.StatusCode)
	}
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrGateway
}
