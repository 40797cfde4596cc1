package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prudhvinik1/sessionauth/internal/models"
)

// AccountRepository is the user store. Email uniqueness is enforced by the
// store itself, never by a find-then-create sequence in the caller.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindBy(ctx context.Context, field AccountField, value any) (*models.Account, error)
	Update(ctx context.Context, id int64, fields AccountFields) error
	// ConsumeResetToken swaps in hashedCredential and clears the reset token
	// in one step, for the account currently holding resetToken.
	ConsumeResetToken(ctx context.Context, resetToken, hashedCredential string) (*models.Account, error)
	// ClearSessionToken drops the session of the account holding sessionToken
	// and reports whether one did. A newer token is never touched.
	ClearSessionToken(ctx context.Context, sessionToken string) (bool, error)
}

// SessionRepository stores at most one session per account; saving a new
// one replaces the previous record of that account. Tokens are the stored
// digests.
type SessionRepository interface {
	Save(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteByAccountID(ctx context.Context, accountID int64) (bool, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
}

// DBTX is the subset of *pgxpool.Pool the Postgres repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
