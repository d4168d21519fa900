package domain

import "time"

// DonationStatusVerified is the only status a recorded donation can have.
const DonationStatusVerified = "verified"

// Donation is an immutable ledger entry for an approved charge. PaymentID is
// its natural unique key.
type Donation struct {
	ID         string    `json:"id" dynamodbav:"id"`
	UserID     string    `json:"userId" dynamodbav:"user_id"`
	UserName   string    `json:"userName" dynamodbav:"user_name"`
	UserPhoto  string    `json:"userPhoto" dynamodbav:"user_photo"`
	Amount     float64   `json:"amount" dynamodbav:"amount"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"created_at"`
	Status     string    `json:"status" dynamodbav:"status"`
	PaymentID  string    `json:"paymentId" dynamodbav:"payment_id"`
	PayerEmail string    `json:"payerEmail" dynamodbav:"payer_email"`
}
