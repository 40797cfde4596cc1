package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/prudhvinik1/sessionauth/internal/models"
)

// MemoryAccountRepository keeps accounts in process memory. Email, session
// token and reset token are unique among live values, as in the SQL schema.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	nextID   int64
	accounts map[int64]*models.Account
	byEmail  map[string]int64
	now      func() time.Time
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[int64]*models.Account),
		byEmail:  make(map[string]int64),
		now:      time.Now,
	}
}

var _ AccountRepository = (*MemoryAccountRepository)(nil)

func (r *MemoryAccountRepository) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[account.Email]; exists {
		return ErrAlreadyExists
	}

	r.nextID++
	now := r.now()
	account.ID = r.nextID
	account.CreatedAt = now
	account.UpdatedAt = now

	r.accounts[account.ID] = cloneAccount(account)
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *MemoryAccountRepository) FindBy(_ context.Context, field AccountField, value any) (*models.Account, error) {
	v, err := lookupValue(field, value)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch field {
	case FieldID:
		if a, ok := r.accounts[v.(int64)]; ok {
			return cloneAccount(a), nil
		}
		return nil, ErrNotFound
	case FieldEmail:
		if id, ok := r.byEmail[v.(string)]; ok {
			return cloneAccount(r.accounts[id]), nil
		}
		return nil, ErrNotFound
	}

	want := v.(string)
	for _, a := range r.accounts {
		if fieldEquals(a, field, want) {
			return cloneAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryAccountRepository) Update(_ context.Context, id int64, fields AccountFields) error {
	values, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if len(values) == 0 {
		return nil
	}

	updated := cloneAccount(current)
	for field, value := range values {
		switch field {
		case FieldEmail:
			updated.Email = value.(string)
		case FieldHashedCredential:
			updated.HashedCredential = value.(string)
		case FieldSessionToken:
			updated.SessionToken = cloneString(value.(*string))
		case FieldResetToken:
			updated.ResetToken = cloneString(value.(*string))
		case FieldSessionCreatedAt:
			updated.SessionCreatedAt = cloneTime(value.(*time.Time))
		}
	}

	if r.conflicts(updated) {
		return ErrAlreadyExists
	}

	delete(r.byEmail, current.Email)
	r.byEmail[updated.Email] = id
	updated.UpdatedAt = r.now()
	r.accounts[id] = updated
	return nil
}

func (r *MemoryAccountRepository) ConsumeResetToken(_ context.Context, resetToken, hashedCredential string) (*models.Account, error) {
	if resetToken == "" {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.accounts {
		if a.ResetToken == nil || *a.ResetToken != resetToken {
			continue
		}
		updated := cloneAccount(a)
		updated.HashedCredential = hashedCredential
		updated.ResetToken = nil
		updated.UpdatedAt = r.now()
		r.accounts[id] = updated
		return cloneAccount(updated), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryAccountRepository) ClearSessionToken(_ context.Context, sessionToken string) (bool, error) {
	if sessionToken == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.accounts {
		if a.SessionToken == nil || *a.SessionToken != sessionToken {
			continue
		}
		updated := cloneAccount(a)
		updated.SessionToken = nil
		updated.SessionCreatedAt = nil
		updated.UpdatedAt = r.now()
		r.accounts[id] = updated
		return true, nil
	}
	return false, nil
}

// conflicts reports whether another account already holds one of the unique
// values of candidate. Callers hold r.mu.
func (r *MemoryAccountRepository) conflicts(candidate *models.Account) bool {
	for id, a := range r.accounts {
		if id == candidate.ID {
			continue
		}
		if a.Email == candidate.Email {
			return true
		}
		if candidate.SessionToken != nil && fieldEquals(a, FieldSessionToken, *candidate.SessionToken) {
			return true
		}
		if candidate.ResetToken != nil && fieldEquals(a, FieldResetToken, *candidate.ResetToken) {
			return true
		}
	}
	return false
}

func fieldEquals(a *models.Account, field AccountField, want string) bool {
	switch field {
	case FieldHashedCredential:
		return a.HashedCredential == want
	case FieldSessionToken:
		return a.SessionToken != nil && *a.SessionToken == want
	case FieldResetToken:
		return a.ResetToken != nil && *a.ResetToken == want
	}
	return false
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.SessionToken = cloneString(a.SessionToken)
	c.ResetToken = cloneString(a.ResetToken)
	c.SessionCreatedAt = cloneTime(a.SessionCreatedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
