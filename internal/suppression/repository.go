package suppression

import (
	"context"

	"github.com/totalaud/contact-safety/internal/domain"
)

// Repository defines the data access contract for the suppression store.
// Implementations never see plaintext addresses, only hashes and ciphertext.
type Repository interface {
	// Lookup returns every entry in scope whose email hash is in
	// emailHashes or whose domain hash is in domainHashes, oldest first.
	// It is a single round trip.
	Lookup(ctx context.Context, scope domain.SuppressionScope, emailHashes, domainHashes []string) ([]domain.SuppressionEntry, error)

	// Insert stores a new entry. It returns ErrDuplicate when the email hash
	// already exists in the entry's scope, and any other error as-is.
	Insert(ctx context.Context, e *domain.SuppressionEntry) error

	// FindByEmailHash returns all entries for an email hash in any scope.
	FindByEmailHash(ctx context.Context, emailHash string) ([]domain.SuppressionEntry, error)

	// Delete hard-deletes every entry for an email hash. Only an explicit
	// erasure request may call it.
	Delete(ctx context.Context, emailHash string) (int64, error)
}
