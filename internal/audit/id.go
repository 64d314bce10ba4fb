package audit

import "github.com/google/uuid"

// IDProvider issues unique event identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// IDFunc adapts a plain function to IDProvider.
type IDFunc func() (string, error)

// NewID calls the function.
func (f IDFunc) NewID() (string, error) {
	return f()
}

// UUIDv7 returns a time-ordered UUID string.
func UUIDv7() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
