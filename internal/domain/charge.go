package domain

// ChargeStatus is the provider-side status of a charge.
type ChargeStatus string

const (
	ChargeStatusPending    ChargeStatus = "pending"
	ChargeStatusApproved   ChargeStatus = "approved"
	ChargeStatusAuthorized ChargeStatus = "authorized"
	ChargeStatusInProcess  ChargeStatus = "in_process"
	ChargeStatusRejected   ChargeStatus = "rejected"
	ChargeStatusCancelled  ChargeStatus = "cancelled"
	ChargeStatusRefunded   ChargeStatus = "refunded"
)

// ChargeRequest is a single donation attempt. It is never persisted.
type ChargeRequest struct {
	Amount          float64
	DonorID         string
	DonorEmail      string
	NotificationURL string
	// IdempotencyKey correlates retried requests to a single provider charge.
	IdempotencyKey string
}

// Charge mirrors the provider's payment entity. ExternalReference carries the
// donor id that created it.
type Charge struct {
	ID                string
	Status            ChargeStatus
	Amount            float64
	PayerEmail        string
	ExternalReference string
	QRCode            string
	QRCodeBase64      string
}

// QRPayload is returned once to the donor after a charge is created.
type QRPayload struct {
	PaymentID    string
	QRCode       string
	QRCodeBase64 string
}
