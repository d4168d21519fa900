package postgres

import (
	"context"
	"database/sql"

	"donations/internal/domain"
	"donations/internal/repository"
)

// DonorRepository implements repository.DonorRepository using PostgreSQL.
type DonorRepository struct {
	q Querier
}

// NewDonorRepository creates a new DonorRepository.
func NewDonorRepository(db *sql.DB) *DonorRepository {
	return &DonorRepository{q: db}
}

// Upsert creates a donor or refreshes its profile fields.
func (r *DonorRepository) Upsert(ctx context.Context, donor *domain.Donor) error {
	query := `
		INSERT INTO donors (id, email, display_name, photo_url, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    photo_url = EXCLUDED.photo_url,
		    updated_at = now()
	`
	_, err := r.q.ExecContext(ctx, query, donor.ID, donor.Email, donor.DisplayName, donor.PhotoURL)
	return err
}

// GetByID retrieves a donor by ID.
func (r *DonorRepository) GetByID(ctx context.Context, id string) (*domain.Donor, error) {
	query := `SELECT id, email, display_name, photo_url, updated_at FROM donors WHERE id = $1`
	row := r.q.QueryRowContext(ctx, query, id)

	var donor domain.Donor
	err := row.Scan(&donor.ID, &donor.Email, &donor.DisplayName, &donor.PhotoURL, &donor.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &donor, nil
}
