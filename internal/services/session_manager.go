package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prudhvinik1/sessionauth/internal/logging"
	"github.com/prudhvinik1/sessionauth/internal/metrics"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/prudhvinik1/sessionauth/internal/repositories"
	"github.com/prudhvinik1/sessionauth/internal/utils"
)

const (
	sessionCreated   = "created"
	sessionDestroyed = "destroyed"
	sessionExpired   = "expired"
)

// SessionPolicy is resolved once from configuration. A zero Duration means
// sessions never expire.
type SessionPolicy struct {
	Duration time.Duration
}

// SessionManager issues and resolves opaque session tokens. Only the digest
// of a token reaches the store; every backend keeps at most one session per
// account.
type SessionManager struct {
	store   repositories.SessionRepository
	policy  SessionPolicy
	now     func() time.Time
	locks   utils.KeyedMutex[int64]
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type SessionOption func(*SessionManager)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

func WithLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = logger }
}

func WithMetrics(metrics *metrics.Metrics) SessionOption {
	return func(m *SessionManager) { m.metrics = metrics }
}

func NewSessionManager(store repositories.SessionRepository, policy SessionPolicy, opts ...SessionOption) *SessionManager {
	if policy.Duration < 0 {
		policy.Duration = 0
	}
	m := &SessionManager{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SessionManager) Policy() SessionPolicy {
	return m.policy
}

// CreateSession starts a new session for accountID, replacing any previous
// one, and returns the bearer token.
func (m *SessionManager) CreateSession(ctx context.Context, accountID int64) (string, error) {
	token, err := utils.GenerateToken()
	if err != nil {
		return "", err
	}

	unlock := m.locks.Lock(accountID)
	defer unlock()

	session := &models.Session{
		Token:     utils.HashToken(token),
		AccountID: accountID,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	m.metrics.ObserveSession(sessionCreated)
	return token, nil
}

// Resolve returns the account owning token. Unknown, empty and expired tokens
// are all ErrNotFound; an expired session is evicted on the way out.
func (m *SessionManager) Resolve(ctx context.Context, token string) (int64, error) {
	session, err := m.lookup(ctx, token)
	if err != nil {
		return 0, err
	}
	return session.AccountID, nil
}

// DestroySession drops the account's session and reports whether one existed.
func (m *SessionManager) DestroySession(ctx context.Context, accountID int64) (bool, error) {
	unlock := m.locks.Lock(accountID)
	defer unlock()

	deleted, err := m.store.DeleteByAccountID(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted {
		m.metrics.ObserveSession(sessionDestroyed)
	}
	return deleted, nil
}

// DestroyByToken ends the session identified by token. It never touches a
// newer session the same account opened since; false means token was not a
// live session.
func (m *SessionManager) DestroyByToken(ctx context.Context, token string) (bool, error) {
	session, err := m.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	unlock := m.locks.Lock(session.AccountID)
	defer unlock()

	deleted, err := m.store.DeleteByToken(ctx, session.Token)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted {
		m.metrics.ObserveSession(sessionDestroyed)
	}
	return deleted, nil
}

func (m *SessionManager) lookup(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	digest := utils.HashToken(token)
	session, err := m.store.GetByToken(ctx, digest)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.ExpiredAt(m.now(), m.policy.Duration) {
		m.evict(ctx, session)
		return nil, ErrNotFound
	}
	return session, nil
}

// evict removes an expired session. Failures are logged only; the caller
// already treats the token as unknown.
func (m *SessionManager) evict(ctx context.Context, session *models.Session) {
	unlock := m.locks.Lock(session.AccountID)
	defer unlock()

	deleted, err := m.store.DeleteByToken(ctx, session.Token)
	if err != nil {
		logging.LogError(m.logger, "failed to evict expired session", err)
		return
	}
	if deleted {
		m.metrics.ObserveSession(sessionExpired)
		m.logger.Debug("evicted expired session", "account_id", session.AccountID)
	}
}
