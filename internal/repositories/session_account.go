package repositories

import (
	"context"
	"errors"

	"github.com/prudhvinik1/sessionauth/internal/models"
)

// AccountSessionRepository keeps the session on the account record itself
// (session_token + session_created_at), through any AccountRepository.
type AccountSessionRepository struct {
	accounts AccountRepository
}

func NewAccountSessionRepository(accounts AccountRepository) *AccountSessionRepository {
	return &AccountSessionRepository{accounts: accounts}
}

var _ SessionRepository = (*AccountSessionRepository)(nil)

func (r *AccountSessionRepository) Save(ctx context.Context, session *models.Session) error {
	return r.accounts.Update(ctx, session.AccountID, AccountFields{
		FieldSessionToken:     session.Token,
		FieldSessionCreatedAt: session.CreatedAt,
	})
}

func (r *AccountSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	account, err := r.accounts.FindBy(ctx, FieldSessionToken, token)
	if err != nil {
		return nil, err
	}

	session := &models.Session{Token: token, AccountID: account.ID}
	if account.SessionCreatedAt != nil {
		session.CreatedAt = *account.SessionCreatedAt
	}
	return session, nil
}

func (r *AccountSessionRepository) DeleteByAccountID(ctx context.Context, accountID int64) (bool, error) {
	account, err := r.accounts.FindBy(ctx, FieldID, accountID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !account.HasSession() {
		return false, nil
	}
	if err := r.clear(ctx, accountID); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteByToken clears the session only while token is still the account's
// live one, in a single conditional update.
func (r *AccountSessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	return r.accounts.ClearSessionToken(ctx, token)
}

func (r *AccountSessionRepository) clear(ctx context.Context, accountID int64) error {
	err := r.accounts.Update(ctx, accountID, AccountFields{
		FieldSessionToken:     nil,
		FieldSessionCreatedAt: nil,
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
