package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditstore/internal/apperr"
	"auditstore/internal/database"
	"auditstore/internal/model"
	"auditstore/internal/repository"
)

var userColumns = []string{"id", "name", "email", "created", "deleted", "notes"}

func newTestBase(t *testing.T, h hooks, opts ...Option) (*Base, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newBase(db, h, opts...), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestBase_Load(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 8, 15, 22, 52, 9, 0, time.UTC)

	t.Run("hydrates by primary key", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		mock.ExpectQuery(q("SELECT * FROM users WHERE id = $1 ORDER BY id DESC LIMIT 1")).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(int64(7), "user123456", "user@domain.com", created, nil, nil))

		u := model.NewUser(nil)
		require.NoError(t, b.Load(ctx, u, int64(7), nil))

		id, ok := u.ID()
		assert.True(t, ok)
		assert.Equal(t, int64(7), id)
		assert.Equal(t, "user@domain.com", u.Email())
		assert.Equal(t, created, u.OrigData()["created"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match leaves model untouched", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		mock.ExpectQuery(q("SELECT * FROM users WHERE email = $1 ORDER BY id DESC LIMIT 1")).
			WithArgs("missing@domain.com").
			WillReturnRows(sqlmock.NewRows(userColumns))

		u := model.NewUser(map[string]any{model.UserName: "keep"})
		require.NoError(t, b.Load(ctx, u, "missing@domain.com", model.UserEmail))

		_, ok := u.ID()
		assert.False(t, ok)
		assert.Equal(t, "keep", u.Name())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("composite key", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		mock.ExpectQuery(q("SELECT * FROM history WHERE entity_type = $1 AND entity_id = $2 ORDER BY id DESC LIMIT 1")).
			WithArgs("user", int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "changed_data"}).
				AddRow(int64(11), "user", int64(3), `{"name":"x"}`))

		h := model.NewHistory(nil)
		err := b.Load(ctx, h, []any{"user", int64(3)}, []string{model.HistoryEntityType, model.HistoryEntityID})

		require.NoError(t, err)
		assert.Equal(t, int64(3), h.EntityID())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("select list", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		mock.ExpectQuery(q("SELECT id, name FROM users WHERE id = $1 ORDER BY id DESC LIMIT 1")).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "user123456"))

		u := model.NewUser(nil)
		require.NoError(t, b.LoadColumns(ctx, u, int64(1), model.FieldID, "id, name"))
		assert.Equal(t, "user123456", u.Name())
		assert.False(t, u.Has(model.UserEmail))
	})

	t.Run("rejects expressions in the select list", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})

		err := b.LoadColumns(ctx, model.NewUser(nil), int64(1), nil, "id, pg_sleep(10)")

		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mismatched arity", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		u := model.NewUser(nil)

		err := b.Load(ctx, u, []any{1, 2}, model.FieldID)
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)

		err = b.Load(ctx, u, 1, []string{"id", "email"})
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)

		err = b.Load(ctx, u, []any{1}, []string{"id", "email"})
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)

		assert.NoError(t, mock.ExpectationsWereMet(), "no statement is issued")
	})

	t.Run("query error", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("conn reset"))

		err := b.Load(ctx, model.NewUser(nil), int64(1), nil)
		assert.ErrorContains(t, err, "conn reset")
	})
}

func TestBase_SaveModel_Insert(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)

	t.Run("owns transaction and reloads row", func(t *testing.T) {
		var hooked model.Model
		b, mock := newTestBase(t, hooks{
			beforeCommit: func(ctx context.Context, tx *database.Tx, m model.Model) error {
				assert.NotNil(t, tx)
				assert.True(t, m.IsNew(), "model is marked new before the hook runs")
				hooked = m
				return nil
			},
		})

		mock.ExpectBegin()
		mock.ExpectQuery(q("INSERT INTO users (email, name) VALUES ($1, $2) RETURNING id")).
			WithArgs("user@domain.com", "user123456").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		mock.ExpectQuery(q("SELECT * FROM users WHERE id = $1 ORDER BY id DESC LIMIT 1")).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(int64(1), "user123456", "user@domain.com", created, nil, nil))
		mock.ExpectCommit()

		u := model.NewUser(map[string]any{model.UserName: "user123456", model.UserEmail: "user@domain.com"})
		require.NoError(t, b.SaveModel(ctx, nil, u))

		id, ok := u.ID()
		assert.True(t, ok)
		assert.Equal(t, int64(1), id)
		assert.True(t, u.IsNew())
		_, ok = u.Created()
		assert.True(t, ok, "store defaults are hydrated")
		assert.Same(t, u, hooked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reuses ambient transaction", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})

		mock.ExpectBegin()
		tx, err := database.Begin(ctx, b.db)
		require.NoError(t, err)

		mock.ExpectQuery(q("INSERT INTO users (name) VALUES ($1) RETURNING id")).
			WithArgs("user123456").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
		mock.ExpectQuery(q("SELECT * FROM users WHERE id = $1")).
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "user123456"))

		u := model.NewUser(map[string]any{model.UserName: "user123456"})
		require.NoError(t, b.SaveModel(ctx, tx, u))
		assert.NoError(t, mock.ExpectationsWereMet(), "no commit from the inner call")

		mock.ExpectCommit()
		require.NoError(t, tx.Commit())
	})

	t.Run("statement failure rolls back and wraps", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&logs, nil))
		b, mock := newTestBase(t, hooks{}, WithLogger(logger))

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
		mock.ExpectRollback()

		u := model.NewUser(map[string]any{model.UserName: "user123456"})
		err := b.SaveModel(ctx, nil, u)

		var se *apperr.SaveError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "23505", se.Code)
		assert.Contains(t, err.Error(), "duplicate key value")
		assert.Contains(t, logs.String(), "entity insert failed")
		assert.Contains(t, logs.String(), `"level":"ERROR"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hook failure aborts the write", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{
			beforeCommit: func(context.Context, *database.Tx, model.Model) error {
				return errors.New("history insert failed")
			},
		})

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
		mock.ExpectQuery(q("SELECT * FROM users WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "user123456"))
		mock.ExpectRollback()

		u := model.NewUser(map[string]any{model.UserName: "user123456"})
		err := b.SaveModel(ctx, nil, u)

		assert.True(t, apperr.IsSaveError(err))
		_, ok := u.ID()
		assert.False(t, ok, "rolled back insert leaves no id behind")
		assert.False(t, u.IsNew())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation failure issues no statement", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{
			validate: func(context.Context, model.Model) error {
				return apperr.IncorrectData("Email format is invalid")
			},
		})

		err := b.SaveModel(ctx, nil, model.NewUser(map[string]any{model.UserEmail: "not_email_format"}))

		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
		assert.False(t, apperr.IsSaveError(err), "validation errors are returned unchanged")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unsafe column names", func(t *testing.T) {
		b, _ := newTestBase(t, hooks{})
		u := model.NewUser(nil)
		require.NoError(t, u.Set("name) VALUES ('x'); --", "x"))

		err := b.SaveModel(ctx, nil, u)
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
	})
}

func TestBase_SaveModel_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates every non key field and resnapshots", func(t *testing.T) {
		var origAtHook map[string]any
		b, mock := newTestBase(t, hooks{
			beforeCommit: func(ctx context.Context, tx *database.Tx, m model.Model) error {
				origAtHook = m.OrigData()
				return nil
			},
		})

		u := model.NewUser(nil)
		u.SetData(map[string]any{"id": int64(3), "name": "oldname1", "email": "a@b.io"})
		u.SetName("newname1")

		mock.ExpectBegin()
		mock.ExpectExec(q("UPDATE users SET email = $1, name = $2 WHERE id = $3")).
			WithArgs("a@b.io", "newname1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, b.SaveModel(ctx, nil, u))

		assert.Equal(t, "oldname1", origAtHook["name"], "hook sees the pre-save snapshot")
		assert.Equal(t, "newname1", u.OrigData()["name"])
		assert.False(t, u.IsNew())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loaded timestamps are written back unchanged", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		wib := time.FixedZone("WIB", 7*60*60)
		created := time.Date(2024, 8, 15, 10, 0, 0, 123456000, wib)

		mock.ExpectQuery(q("SELECT * FROM users WHERE id = $1 ORDER BY id DESC LIMIT 1")).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(int64(3), "user123456", "user@domain.com", created, nil, nil))
		u := model.NewUser(nil)
		require.NoError(t, b.Load(ctx, u, int64(3), nil))

		got, ok := u.Created()
		require.True(t, ok)
		assert.True(t, got.Equal(created))
		assert.Equal(t, 123456000, got.Nanosecond())

		u.SetName("renamed12")
		mock.ExpectBegin()
		mock.ExpectExec(q("UPDATE users SET created = $1, deleted = $2, email = $3, name = $4, notes = $5 WHERE id = $6")).
			WithArgs(created, nil, "user@domain.com", "renamed12", nil, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, b.SaveModel(ctx, nil, u))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back and keeps snapshot", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})

		u := model.NewUser(nil)
		u.SetData(map[string]any{"id": int64(3), "name": "oldname1"})
		u.SetName("newname1")

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users").WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		err := b.SaveModel(ctx, nil, u)

		assert.True(t, apperr.IsSaveError(err))
		assert.Equal(t, "oldname1", u.OrigData()["name"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBase_DeleteModel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		soft  bool
		query string
	}{
		{name: "soft", soft: true, query: "UPDATE users SET deleted = NOW() WHERE id = $1"},
		{name: "hard", soft: false, query: "DELETE FROM users WHERE id = $1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mock := newTestBase(t, hooks{})
			u := model.NewUser(nil)
			u.SetData(map[string]any{"id": int64(9)})

			mock.ExpectExec(q(tt.query)).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 1))

			ok, err := b.DeleteModel(ctx, nil, u, tt.soft)

			assert.NoError(t, err)
			assert.True(t, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("soft delete needs a soft deletable entity", func(t *testing.T) {
		b, _ := newTestBase(t, hooks{})
		d := model.NewForbiddenDomain(nil)
		d.SetData(map[string]any{"id": int64(1)})

		_, err := b.DeleteModel(ctx, nil, d, true)
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
	})

	t.Run("unsaved entity", func(t *testing.T) {
		b, _ := newTestBase(t, hooks{})

		ok, err := b.DeleteModel(ctx, nil, model.NewUser(nil), false)
		assert.False(t, ok)
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
	})

	t.Run("no row affected", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		u := model.NewUser(nil)
		u.SetData(map[string]any{"id": int64(9)})

		mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := b.DeleteModel(ctx, nil, u, false)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func domainRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"domain": fmt.Sprintf("d%d.io", i), "reason": "Disposable Email Domain"}
	}
	return rows
}

func TestBase_InsertBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("statement shape", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})

		mock.ExpectExec(q("INSERT INTO forbidden_email_domains (domain, reason) VALUES ($1, $2), ($3, $4) "+
			"ON CONFLICT (domain) DO UPDATE SET domain = EXCLUDED.domain, reason = EXCLUDED.reason")).
			WithArgs("d0.io", "Disposable Email Domain", "d1.io", "Disposable Email Domain").
			WillReturnResult(sqlmock.NewResult(0, 2))

		require.NoError(t, b.InsertBatch(ctx, "forbidden_email_domains", []string{"domain"}, domainRows(2)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("one statement per thousand rows", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		for i := 0; i < 3; i++ {
			mock.ExpectExec("INSERT INTO forbidden_email_domains").WillReturnResult(sqlmock.NewResult(0, 1))
		}

		require.NoError(t, b.InsertBatch(ctx, "forbidden_email_domains", []string{"domain"}, domainRows(2001)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed chunk aborts the rest", func(t *testing.T) {
		var logs bytes.Buffer
		b, mock := newTestBase(t, hooks{},
			WithMaxInsertRows(2),
			WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		)
		mock.ExpectExec("INSERT INTO forbidden_email_domains").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO forbidden_email_domains").WillReturnError(errors.New("value too long"))

		err := b.InsertBatch(ctx, "forbidden_email_domains", []string{"domain"}, domainRows(5))

		assert.True(t, apperr.IsSaveError(err))
		assert.Contains(t, logs.String(), "batch insert failed")
		assert.NoError(t, mock.ExpectationsWereMet(), "third chunk is never sent")
	})

	t.Run("empty input", func(t *testing.T) {
		b, mock := newTestBase(t, hooks{})
		require.NoError(t, b.InsertBatch(ctx, "forbidden_email_domains", []string{"domain"}, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing conflict target", func(t *testing.T) {
		b, _ := newTestBase(t, hooks{})
		err := b.InsertBatch(ctx, "forbidden_email_domains", nil, domainRows(1))
		assert.ErrorIs(t, err, apperr.ErrIncorrectData)
	})
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		query    repository.Query
		wantSQL  string
		wantArgs []any
		wantErr  bool
	}{
		{
			name:    "all columns",
			query:   repository.Query{},
			wantSQL: "SELECT * FROM users",
		},
		{
			name: "conditions, in-list, ordering and paging",
			query: repository.Query{
				Fields: []string{"id", "name"},
				Where: []repository.Condition{
					repository.Where("id", ">", 1),
					repository.Where("email", "in", []string{"a@x.io", "b@x.io"}),
				},
				Order:  []repository.Order{{Field: "name", Direction: "ASC"}, {Field: "id", Direction: "asc"}},
				Limit:  10,
				Offset: 20,
			},
			wantSQL:  "SELECT id, name FROM users WHERE id > $1 AND email IN ($2, $3) ORDER BY name ASC, id DESC LIMIT 10 OFFSET 20",
			wantArgs: []any{1, "a@x.io", "b@x.io"},
		},
		{
			name: "null checks",
			query: repository.Query{Where: []repository.Condition{
				repository.Where("deleted", "is", nil),
				repository.Where("notes", "IS NOT", nil),
				repository.Where("id", "=", 3),
			}},
			wantSQL:  "SELECT * FROM users WHERE deleted IS NULL AND notes IS NOT NULL AND id = $1",
			wantArgs: []any{3},
		},
		{
			name:    "is with a value",
			query:   repository.Query{Where: []repository.Condition{repository.Where("deleted", "IS", "x")}},
			wantErr: true,
		},
		{
			name:    "unknown operator",
			query:   repository.Query{Where: []repository.Condition{repository.Where("id", "; DROP", 1)}},
			wantErr: true,
		},
		{
			name:    "empty in-list",
			query:   repository.Query{Where: []repository.Condition{repository.Where("id", "IN", []int{})}},
			wantErr: true,
		},
		{
			name:    "bad field",
			query:   repository.Query{Order: []repository.Order{{Field: "id; --"}}},
			wantErr: true,
		},
		{
			name:    "in with a scalar",
			query:   repository.Query{Where: []repository.Condition{repository.Where("id", "IN", 1)}},
			wantErr: true,
		},
		{
			name:    "equality with a list",
			query:   repository.Query{Where: []repository.Condition{repository.Where("id", "=", []int{1, 2})}},
			wantErr: true,
		},
		{
			name:    "expression in select list",
			query:   repository.Query{Fields: []string{"id", "(SELECT password FROM admins)"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildSelect("users", tt.query)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrIncorrectData)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
