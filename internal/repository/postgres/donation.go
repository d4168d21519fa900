package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"donations/internal/domain"
	"donations/internal/repository"
)

// DonationLedger is a PostgreSQL implementation of repository.DonationLedger.
type DonationLedger struct {
	q Querier
}

// NewDonationLedger creates a new PostgreSQL donation ledger.
func NewDonationLedger(db *sql.DB) *DonationLedger {
	return &DonationLedger{q: db}
}

// Append inserts a donation unless one already exists for its payment id.
// The unique constraint on payment_id makes concurrent duplicates safe.
func (r *DonationLedger) Append(ctx context.Context, donation *domain.Donation) error {
	if donation.ID == "" {
		donation.ID = uuid.New().String()
	}

	query := `
		INSERT INTO donations (id, payment_id, user_id, user_name, user_photo, amount, status, payer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING created_at
	`

	err := r.q.QueryRowContext(ctx, query,
		donation.ID,
		donation.PaymentID,
		donation.UserID,
		donation.UserName,
		donation.UserPhoto,
		donation.Amount,
		donation.Status,
		donation.PayerEmail,
	).Scan(&donation.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrDuplicate
		}
		return err
	}

	return nil
}

// GetByPaymentID retrieves the donation recorded for a payment.
func (r *DonationLedger) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Donation, error) {
	query := `
		SELECT id, payment_id, user_id, user_name, user_photo, amount, status, payer_email, created_at
		FROM donations WHERE payment_id = $1
	`

	donation, err := scanDonation(r.q.QueryRowContext(ctx, query, paymentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return donation, nil
}

// ListRecent returns up to limit donations, newest first.
func (r *DonationLedger) ListRecent(ctx context.Context, limit int) ([]*domain.Donation, error) {
	query := `
		SELECT id, payment_id, user_id, user_name, user_photo, amount, status, payer_email, created_at
		FROM donations ORDER BY created_at DESC LIMIT $1
	`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donations []*domain.Donation
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, donation)
	}
	return donations, rows.Err()
}

func scanDonation(row rowScanner) (*domain.Donation, error) {
	var donation domain.Donation
	err := row.Scan(
		&donation.ID,
		&donation.PaymentID,
		&donation.UserID,
		&donation.UserName,
		&donation.UserPhoto,
		&donation.Amount,
		&donation.Status,
		&donation.PayerEmail,
		&donation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &donation, nil
}
