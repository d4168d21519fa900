package domain

// Identity is a verified caller, as asserted by a validated bearer token.
type Identity struct {
	ID      string
	Email   string
	Name    string
	Picture string
}
