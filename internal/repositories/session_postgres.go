package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/samber/oops"
)

// PostgresSessionRepository persists sessions in user_sessions so they
// survive restarts. account_id is unique, which gives one session per account.
type PostgresSessionRepository struct {
	db DBTX
}

func NewPostgresSessionRepository(db DBTX) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

var _ SessionRepository = (*PostgresSessionRepository)(nil)

func (r *PostgresSessionRepository) Save(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO user_sessions (session_id, account_id, created_at)
              VALUES ($1, $2, $3)
              ON CONFLICT (account_id) DO UPDATE
              SET session_id = EXCLUDED.session_id, created_at = EXCLUDED.created_at`

	_, err := r.db.Exec(ctx, query, session.Token, session.AccountID, session.CreatedAt)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("account_id", session.AccountID).Wrap(err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT session_id, account_id, created_at FROM user_sessions WHERE session_id = $1`

	var session models.Session
	err := r.db.QueryRow(ctx, query, token).Scan(&session.Token, &session.AccountID, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}
	return &session, nil
}

func (r *PostgresSessionRepository) DeleteByAccountID(ctx context.Context, accountID int64) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresSessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, token)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}
