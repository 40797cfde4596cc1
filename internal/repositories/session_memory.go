package repositories

import (
	"context"
	"sync"

	"github.com/prudhvinik1/sessionauth/internal/models"
)

// MemorySessionRepository keeps sessions in process memory. They do not
// survive a restart.
type MemorySessionRepository struct {
	mu        sync.RWMutex
	byToken   map[string]models.Session
	byAccount map[int64]string
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		byToken:   make(map[string]models.Session),
		byAccount: make(map[int64]string),
	}
}

var _ SessionRepository = (*MemorySessionRepository)(nil)

func (r *MemorySessionRepository) Save(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byAccount[session.AccountID]; ok {
		delete(r.byToken, old)
	}
	r.byToken[session.Token] = *session
	r.byAccount[session.AccountID] = session.Token
	return nil
}

func (r *MemorySessionRepository) GetByToken(_ context.Context, token string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (r *MemorySessionRepository) DeleteByAccountID(_ context.Context, accountID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byAccount[accountID]
	if !ok {
		return false, nil
	}
	delete(r.byAccount, accountID)
	delete(r.byToken, token)
	return true, nil
}

func (r *MemorySessionRepository) DeleteByToken(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byToken[token]
	if !ok {
		return false, nil
	}
	delete(r.byToken, token)
	if r.byAccount[session.AccountID] == token {
		delete(r.byAccount, session.AccountID)
	}
	return true, nil
}
