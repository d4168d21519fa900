package domain

import "time"

// Fallback profile used when a donor has no display name or avatar.
const (
	AnonymousDonorName  = "Doador Anônimo"
	AnonymousDonorPhoto = "https://via.placeholder.com/50"
)

// Donor is the public profile of an authenticated donor.
type Donor struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
	UpdatedAt   time.Time
}

// PublicName returns the display name, or the anonymous fallback when unset.
func (d *Donor) PublicName() string {
	if d == nil || d.DisplayName == "" {
		return AnonymousDonorName
	}
	return d.DisplayName
}

// PublicPhoto returns the avatar URL, or the placeholder when unset.
func (d *Donor) PublicPhoto() string {
	if d == nil || d.PhotoURL == "" {
		return AnonymousDonorPhoto
	}
	return d.PhotoURL
}
