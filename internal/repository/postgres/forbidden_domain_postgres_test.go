package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditstore/internal/apperr"
)

func TestForbiddenDomainPostgres_GetByDomain(t *testing.T) {
	ctx := context.Background()
	const query = "SELECT * FROM forbidden_email_domains WHERE domain = $1 ORDER BY id DESC LIMIT 1"
	columns := []string{"id", "domain", "reason", "updated"}

	t.Run("found and cached", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewForbiddenDomainPostgres(db)

		dbMock.ExpectQuery(q(query)).WithArgs("mailinator.com").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), "mailinator.com", "Disposable Email Domain", nil))

		d, err := repo.GetByDomain(ctx, "mailinator.com", false)
		require.NoError(t, err)
		assert.Equal(t, "Disposable Email Domain", d.Reason())

		again, err := repo.GetByDomain(ctx, "mailinator.com", false)
		require.NoError(t, err)
		assert.Same(t, d, again)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("not forbidden", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewForbiddenDomainPostgres(db)

		dbMock.ExpectQuery(q(query)).WithArgs("domain.com").WillReturnRows(sqlmock.NewRows(columns))

		d, err := repo.GetByDomain(ctx, "domain.com", false)
		assert.Nil(t, d)
		assert.ErrorIs(t, err, apperr.ErrNoSuchEntity)
	})
}

func TestForbiddenDomainPostgres_MassInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts on domain", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewForbiddenDomainPostgres(db)

		dbMock.ExpectExec(q("INSERT INTO forbidden_email_domains (domain, reason) VALUES ($1, $2), ($3, $4), ($5, $6) "+
			"ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain, reason = EXCLUDED.reason")).
			WithArgs(
				"d0.io", "Disposable Email Domain",
				"d1.io", "Disposable Email Domain",
				"d2.io", "Disposable Email Domain",
			).
			WillReturnResult(sqlmock.NewResult(0, 3))

		require.NoError(t, repo.MassInsert(ctx, domainRows(3)))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("chunked", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewForbiddenDomainPostgres(db, WithMaxInsertRows(10))

		for i := 0; i < 3; i++ {
			dbMock.ExpectExec("INSERT INTO forbidden_email_domains").WillReturnResult(sqlmock.NewResult(0, 10))
		}

		require.NoError(t, repo.MassInsert(ctx, domainRows(25)))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
