package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/suppression"
)

var entryCols = []string{
	"id", "email_hash", "domain_hash", "email_encrypted", "domain_encrypted",
	"scope", "reason", "source", "added_by", "notes", "created_at",
}

func TestLookup_SingleQueryBothHashSets(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM contact_suppressions\s+WHERE scope = \$1\s+AND \(email_hash = ANY\(\$2\) OR domain_hash = ANY\(\$3\)\)`).
		WithArgs("global", pq.Array([]string{"e1", "e2"}), pq.Array([]string{"d1"})).
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("id-1", "e1", "d1", "", "", "global", "unsubscribe", "footer", "", "", created))

	repo := NewSuppressionRepo(db)
	got, err := repo.Lookup(context.Background(), domain.ScopeGlobal, []string{"e1", "e2"}, []string{"d1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].EmailHash)
	assert.Equal(t, domain.ReasonUnsubscribe, got[0].Reason)
	assert.Equal(t, domain.ScopeGlobal, got[0].Scope)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup_NoHashesNoQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	got, err := NewSuppressionRepo(db).Lookup(context.Background(), domain.ScopeGlobal, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookup_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM contact_suppressions").WillReturnError(errors.New("conn refused"))

	_, err = NewSuppressionRepo(db).Lookup(context.Background(), domain.ScopeGlobal, []string{"e1"}, nil)
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	e := &domain.SuppressionEntry{
		EmailHash:  "e1",
		DomainHash: "d1",
		Scope:      domain.ScopeGlobal,
		Reason:     domain.ReasonOptOut,
		Source:     "api",
		CreatedAt:  time.Now().UTC(),
	}
	mock.ExpectExec("INSERT INTO contact_suppressions").
		WithArgs(sqlmock.AnyArg(), "e1", "d1", "", "", "global", "opt_out", "api", "", "", e.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewSuppressionRepo(db).Insert(context.Background(), e))
	assert.NotEmpty(t, e.ID, "insert assigns an id when missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolationIsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO contact_suppressions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = NewSuppressionRepo(db).Insert(context.Background(), &domain.SuppressionEntry{ID: "x", EmailHash: "e1", Scope: domain.ScopeGlobal})
	assert.ErrorIs(t, err, suppression.ErrDuplicate)
}

func TestInsert_OtherErrorIsNotDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO contact_suppressions").
		WillReturnError(&pq.Error{Code: "23502", Message: "null value in column"})

	err = NewSuppressionRepo(db).Insert(context.Background(), &domain.SuppressionEntry{ID: "x", EmailHash: "e1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, suppression.ErrDuplicate))
}

func TestFindByEmailHash(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM contact_suppressions\s+WHERE email_hash = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("id-1", "e1", "d1", "aa:bb:cc", "dd:ee:ff", "global", "gdpr_erasure", "dsar", "user-1", "ticket 42", now).
			AddRow("id-2", "e1", "d1", "", "", "user", "manual", "manual", "user-2", "", now))

	got, err := NewSuppressionRepo(db).FindByEmailHash(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aa:bb:cc", got[0].EmailEncrypted)
	assert.Equal(t, "ticket 42", got[0].Notes)
	assert.Equal(t, domain.ScopeUser, got[1].Scope)
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM contact_suppressions WHERE email_hash").
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewSuppressionRepo(db).Delete(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contact_suppressions`).
		WithArgs("global").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := NewSuppressionRepo(db).Count(context.Background(), domain.ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
