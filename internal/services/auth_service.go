package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prudhvinik1/sessionauth/internal/logging"
	"github.com/prudhvinik1/sessionauth/internal/metrics"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/prudhvinik1/sessionauth/internal/repositories"
	"github.com/prudhvinik1/sessionauth/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmptyEmail         = errors.New("email cannot be empty")

	// Store errors pass through the service unchanged.
	ErrNotFound      = repositories.ErrNotFound
	ErrAlreadyExists = repositories.ErrAlreadyExists
	ErrEmptyPassword = utils.ErrEmptyPassword
)

const (
	opRegister      = "register"
	opLogin         = "login"
	opCurrent       = "current_account"
	opLogout        = "logout"
	opResetRequest  = "reset_request"
	opResetPassword = "update_password"
)

// dummyPassword is verified against when the login email is unknown, so a
// miss costs the same hash work as a wrong password.
const dummyPassword = "sessionauth-timing-equalizer"

type AuthService struct {
	accounts repositories.AccountRepository
	sessions *SessionManager
	hasher   utils.Hasher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	accounts repositories.AccountRepository,
	sessions *SessionManager,
	hasher utils.Hasher,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		s.metrics.ObserveAuth(opRegister, metrics.OutcomeFailure)
		return nil, ErrEmptyEmail
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.observe(opRegister, err)
		return nil, err
	}

	account := &models.Account{
		Email:            email,
		HashedCredential: hashed,
	}
	err = s.accounts.Create(ctx, account)
	s.observe(opRegister, err)
	if errors.Is(err, ErrAlreadyExists) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account registered", "account_id", account.ID)
	return account, nil
}

// Login checks the credentials and opens a fresh session, replacing any
// earlier one. Unknown email and wrong password both give ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	account, err := s.accounts.FindBy(ctx, repositories.FieldEmail, strings.TrimSpace(email))
	if errors.Is(err, repositories.ErrNotFound) {
		s.hasher.Verify(s.dummy(), password)
		s.metrics.ObserveAuth(opLogin, metrics.OutcomeFailure)
		return "", ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.ObserveAuth(opLogin, metrics.OutcomeError)
		return "", fmt.Errorf("failed to get account: %w", err)
	}

	if !s.hasher.Verify(account.HashedCredential, password) {
		s.metrics.ObserveAuth(opLogin, metrics.OutcomeFailure)
		return "", ErrInvalidCredentials
	}

	token, err := s.sessions.CreateSession(ctx, account.ID)
	if err != nil {
		s.metrics.ObserveAuth(opLogin, metrics.OutcomeError)
		return "", err
	}

	s.metrics.ObserveAuth(opLogin, metrics.OutcomeSuccess)
	s.logger.Info("account logged in", "account_id", account.ID)
	return token, nil
}

func (s *AuthService) CurrentAccount(ctx context.Context, sessionToken string) (*models.Account, error) {
	accountID, err := s.sessions.Resolve(ctx, sessionToken)
	if errors.Is(err, ErrNotFound) {
		s.metrics.ObserveAuth(opCurrent, metrics.OutcomeFailure)
		return nil, ErrUnauthenticated
	}
	if err != nil {
		s.metrics.ObserveAuth(opCurrent, metrics.OutcomeError)
		return nil, err
	}

	account, err := s.accounts.FindBy(ctx, repositories.FieldID, accountID)
	if errors.Is(err, repositories.ErrNotFound) {
		// Session outlived its account.
		s.metrics.ObserveAuth(opCurrent, metrics.OutcomeFailure)
		return nil, ErrUnauthenticated
	}
	if err != nil {
		s.metrics.ObserveAuth(opCurrent, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	s.metrics.ObserveAuth(opCurrent, metrics.OutcomeSuccess)
	return account, nil
}

// Logout ends the session identified by sessionToken. A newer session of the
// same account is left alone.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	deleted, err := s.sessions.DestroyByToken(ctx, sessionToken)
	if err != nil {
		s.metrics.ObserveAuth(opLogout, metrics.OutcomeError)
		return err
	}
	if !deleted {
		s.metrics.ObserveAuth(opLogout, metrics.OutcomeFailure)
		return ErrUnauthenticated
	}

	s.metrics.ObserveAuth(opLogout, metrics.OutcomeSuccess)
	return nil
}

// RequestPasswordReset issues a reset token for email, replacing any earlier
// one. Only its digest is stored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	account, err := s.accounts.FindBy(ctx, repositories.FieldEmail, strings.TrimSpace(email))
	if errors.Is(err, repositories.ErrNotFound) {
		s.metrics.ObserveAuth(opResetRequest, metrics.OutcomeFailure)
		return "", ErrNotFound
	}
	if err != nil {
		s.metrics.ObserveAuth(opResetRequest, metrics.OutcomeError)
		return "", fmt.Errorf("failed to get account: %w", err)
	}

	token, err := utils.GenerateToken()
	if err != nil {
		s.metrics.ObserveAuth(opResetRequest, metrics.OutcomeError)
		return "", err
	}

	err = s.accounts.Update(ctx, account.ID, repositories.AccountFields{
		repositories.FieldResetToken: utils.HashToken(token),
	})
	if err != nil {
		s.metrics.ObserveAuth(opResetRequest, metrics.OutcomeError)
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	s.metrics.ObserveAuth(opResetRequest, metrics.OutcomeSuccess)
	s.logger.Info("password reset requested", "account_id", account.ID)
	return token, nil
}

// UpdatePassword swaps the credential of the account holding resetToken and
// clears the token in one store operation, so a token works exactly once. The
// account's live session is dropped afterwards.
func (s *AuthService) UpdatePassword(ctx context.Context, resetToken, newPassword string) (*models.Account, error) {
	if resetToken == "" {
		s.metrics.ObserveAuth(opResetPassword, metrics.OutcomeFailure)
		return nil, ErrInvalidToken
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.observe(opResetPassword, err)
		return nil, err
	}

	account, err := s.accounts.ConsumeResetToken(ctx, utils.HashToken(resetToken), hashed)
	if errors.Is(err, repositories.ErrNotFound) {
		s.metrics.ObserveAuth(opResetPassword, metrics.OutcomeFailure)
		return nil, ErrInvalidToken
	}
	if err != nil {
		s.metrics.ObserveAuth(opResetPassword, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := s.sessions.DestroySession(ctx, account.ID); err != nil {
		logging.LogError(s.logger, "failed to drop session after password update", err)
	}

	s.metrics.ObserveAuth(opResetPassword, metrics.OutcomeSuccess)
	s.logger.Info("password updated", "account_id", account.ID)
	return account, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			logging.LogError(s.logger, "failed to prepare dummy hash", err)
			return
		}
		s.dummyHash = hashed
	})
	return s.dummyHash
}

// observe classifies err as a client failure or an internal error.
func (s *AuthService) observe(operation string, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveAuth(operation, metrics.OutcomeSuccess)
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrEmptyPassword):
		s.metrics.ObserveAuth(operation, metrics.OutcomeFailure)
	default:
		s.metrics.ObserveAuth(operation, metrics.OutcomeError)
	}
}
