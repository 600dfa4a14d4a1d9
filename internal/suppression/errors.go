package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	// ErrDuplicate is returned by Repository.Insert when an entry with the
	// same email hash already exists in the same scope.
	ErrDuplicate = errors.New("suppression entry already exists")

	ErrNotFound        = errors.New("suppression entry not found")
	ErrEmptyEmail      = errors.New("email is required")
	ErrNoEncryptionKey = errors.New("no encryption key configured")
)
