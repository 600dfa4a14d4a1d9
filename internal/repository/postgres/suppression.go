// Package postgres holds the PostgreSQL implementations of the service
// repositories.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/suppression"
)

// uniqueViolation is the SQLSTATE for a unique constraint conflict.
const uniqueViolation = "23505"

const entryColumns = `id, email_hash, COALESCE(domain_hash,''),
		       COALESCE(email_encrypted,''), COALESCE(domain_encrypted,''),
		       scope, reason, source, COALESCE(added_by,''), COALESCE(notes,''), created_at`

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

var _ suppression.Repository = (*SuppressionRepo)(nil)

func (r *SuppressionRepo) Lookup(ctx context.Context, scope domain.SuppressionScope, emailHashes, domainHashes []string) ([]domain.SuppressionEntry, error) {
	if len(emailHashes) == 0 && len(domainHashes) == 0 {
		return nil, nil
	}
	if emailHashes == nil {
		emailHashes = []string{}
	}
	if domainHashes == nil {
		domainHashes = []string{}
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM contact_suppressions
		WHERE scope = $1
		  AND (email_hash = ANY($2) OR domain_hash = ANY($3))
		ORDER BY created_at ASC
	`, string(scope), pq.Array(emailHashes), pq.Array(domainHashes))
	if err != nil {
		return nil, fmt.Errorf("lookup suppressions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SuppressionRepo) Insert(ctx context.Context, e *domain.SuppressionEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_suppressions
			(id, email_hash, domain_hash, email_encrypted, domain_encrypted,
			 scope, reason, source, added_by, notes, created_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, $8, NULLIF($9,''), NULLIF($10,''), $11)
	`, e.ID, e.EmailHash, e.DomainHash, e.EmailEncrypted, e.DomainEncrypted,
		string(e.Scope), string(e.Reason), e.Source, e.AddedBy, e.Notes, e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return suppression.ErrDuplicate
		}
		return fmt.Errorf("insert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) FindByEmailHash(ctx context.Context, emailHash string) ([]domain.SuppressionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM contact_suppressions
		WHERE email_hash = $1
		ORDER BY created_at ASC
	`, emailHash)
	if err != nil {
		return nil, fmt.Errorf("find suppressions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *SuppressionRepo) Delete(ctx context.Context, emailHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM contact_suppressions WHERE email_hash = $1`,
		emailHash,
	)
	if err != nil {
		return 0, fmt.Errorf("delete suppressions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of rows in scope.
func (r *SuppressionRepo) Count(ctx context.Context, scope domain.SuppressionScope) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contact_suppressions WHERE scope = $1`,
		string(scope),
	).Scan(&n)
	return n, err
}

func scanEntries(rows *sql.Rows) ([]domain.SuppressionEntry, error) {
	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		var scope, reason string
		if err := rows.Scan(
			&e.ID, &e.EmailHash, &e.DomainHash,
			&e.EmailEncrypted, &e.DomainEncrypted,
			&scope, &reason, &e.Source, &e.AddedBy, &e.Notes, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		e.Scope = domain.SuppressionScope(scope)
		e.Reason = domain.SuppressionReason(reason)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppressions: %w", err)
	}
	return out, nil
}
