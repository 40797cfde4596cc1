package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{
	"id", "email", "hashed_credential", "session_token", "session_created_at", "reset_token", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func TestPostgresAccountRepository_Create(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    int64
		wantErr   error
		wantCode  string
	}{
		{
			name: "inserts new account",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WithArgs("a@x.com", "hash").
					WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
						AddRow(int64(1), now, now))
			},
			wantID: 1,
		},
		{
			name: "conflict on email returns no row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WithArgs("a@x.com", "hash").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "unique violation",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WithArgs("a@x.com", "hash").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: ErrAlreadyExists,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`INSERT INTO accounts`).
					WithArgs("a@x.com", "hash").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: "ACCOUNT_CREATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresAccountRepository(mock)
			account := &models.Account{Email: "a@x.com", HashedCredential: "hash"}
			err = repo.Create(context.Background(), account)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantCode != "":
				require.Error(t, err)
				oopsErr, ok := oops.AsOops(err)
				require.True(t, ok, "expected oops error, got %T", err)
				assert.Equal(t, tt.wantCode, oopsErr.Code())
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, account.ID)
				assert.False(t, account.CreatedAt.IsZero())
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestPostgresAccountRepository_FindBy(t *testing.T) {
	now := time.Now()

	t.Run("by email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .* FROM accounts WHERE email = \$1`).
			WithArgs("a@x.com").
			WillReturnRows(pgxmock.NewRows(accountColumnNames).
				AddRow(int64(7), "a@x.com", "hash", strPtr("digest"), &now, (*string)(nil), now, now))

		repo := NewPostgresAccountRepository(mock)
		account, err := repo.FindBy(context.Background(), FieldEmail, "a@x.com")

		require.NoError(t, err)
		assert.Equal(t, int64(7), account.ID)
		assert.Equal(t, "hash", account.HashedCredential)
		require.NotNil(t, account.SessionToken)
		assert.Equal(t, "digest", *account.SessionToken)
		assert.Nil(t, account.ResetToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by id accepts int", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .* FROM accounts WHERE id = \$1`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(accountColumnNames).
				AddRow(int64(7), "a@x.com", "hash", nil, nil, nil, now, now))

		repo := NewPostgresAccountRepository(mock)
		account, err := repo.FindBy(context.Background(), FieldID, 7)

		require.NoError(t, err)
		assert.Nil(t, account.SessionToken)
		assert.Nil(t, account.SessionCreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .* FROM accounts WHERE reset_token = \$1`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		repo := NewPostgresAccountRepository(mock)
		_, err = repo.FindBy(context.Background(), FieldResetToken, "missing")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown field never reaches the database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresAccountRepository(mock)
		_, err = repo.FindBy(context.Background(), AccountField("email; DROP TABLE accounts"), "x")

		assert.ErrorIs(t, err, ErrInvalidField)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_Update(t *testing.T) {
	t.Run("builds sorted partial update", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE accounts SET reset_token = \$1, session_token = \$2, updated_at = NOW\(\) WHERE id = \$3`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewPostgresAccountRepository(mock)
		err = repo.Update(context.Background(), 3, AccountFields{
			FieldSessionToken: nil,
			FieldResetToken:   "digest",
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE accounts SET`).
			WithArgs("new-hash", int64(99)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewPostgresAccountRepository(mock)
		err = repo.Update(context.Background(), 99, AccountFields{FieldHashedCredential: "new-hash"})

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE accounts SET`).
			WithArgs("b@x.com", int64(1)).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		repo := NewPostgresAccountRepository(mock)
		err = repo.Update(context.Background(), 1, AccountFields{FieldEmail: "b@x.com"})

		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid field", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresAccountRepository(mock)

		err = repo.Update(context.Background(), 1, AccountFields{"nickname": "bob"})
		assert.ErrorIs(t, err, ErrInvalidField)

		err = repo.Update(context.Background(), 1, AccountFields{FieldID: int64(2)})
		assert.ErrorIs(t, err, ErrInvalidField)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_ConsumeResetToken(t *testing.T) {
	now := time.Now()

	t.Run("swaps credential and clears token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE accounts\s+SET hashed_credential = \$1, reset_token = NULL`).
			WithArgs("new-hash", "reset-digest").
			WillReturnRows(pgxmock.NewRows(accountColumnNames).
				AddRow(int64(1), "a@x.com", "new-hash", nil, nil, nil, now, now))

		repo := NewPostgresAccountRepository(mock)
		account, err := repo.ConsumeResetToken(context.Background(), "reset-digest", "new-hash")

		require.NoError(t, err)
		assert.Equal(t, "new-hash", account.HashedCredential)
		assert.Nil(t, account.ResetToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`UPDATE accounts`).
			WithArgs("new-hash", "used-digest").
			WillReturnError(pgx.ErrNoRows)

		repo := NewPostgresAccountRepository(mock)
		_, err = repo.ConsumeResetToken(context.Background(), "used-digest", "new-hash")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresAccountRepository(mock)
		_, err = repo.ConsumeResetToken(context.Background(), "", "new-hash")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepository_ClearSessionToken(t *testing.T) {
	t.Run("live token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE accounts\s+SET session_token = NULL, session_created_at = NULL, updated_at = NOW\(\)\s+WHERE session_token = \$1`).
			WithArgs("digest").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewPostgresAccountRepository(mock)
		cleared, err := repo.ClearSessionToken(context.Background(), "digest")

		require.NoError(t, err)
		assert.True(t, cleared)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replaced token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`UPDATE accounts`).
			WithArgs("old-digest").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewPostgresAccountRepository(mock)
		cleared, err := repo.ClearSessionToken(context.Background(), "old-digest")

		require.NoError(t, err)
		assert.False(t, cleared)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty token", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPostgresAccountRepository(mock)
		cleared, err := repo.ClearSessionToken(context.Background(), "")

		require.NoError(t, err)
		assert.False(t, cleared)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
