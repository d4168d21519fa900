package domain

import "time"

// ConfirmationRetry asks for a payment confirmation to be processed again
// after a transient failure.
type ConfirmationRetry struct {
	PaymentID string    `json:"paymentId"`
	Attempt   int       `json:"attempt"`
	NotBefore time.Time `json:"notBefore"`
}
