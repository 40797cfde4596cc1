package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/samber/oops"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidField  = errors.New("invalid field")
)

const accountColumns = `id, email, hashed_credential, session_token, session_created_at, reset_token, created_at, updated_at`

type PostgresAccountRepository struct {
	db DBTX
}

func NewPostgresAccountRepository(db DBTX) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

var _ AccountRepository = (*PostgresAccountRepository)(nil)

// Create inserts the account; the unique index on email makes a concurrent
// duplicate lose with ErrAlreadyExists.
func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (email, hashed_credential)
              VALUES ($1, $2)
              ON CONFLICT (email) DO NOTHING
              RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, account.Email, account.HashedCredential).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "create account").Wrap(err)
	}
	return nil
}

func (r *PostgresAccountRepository) FindBy(ctx context.Context, field AccountField, value any) (*models.Account, error) {
	v, err := lookupValue(field, value)
	if err != nil {
		return nil, err
	}

	// field is whitelisted by lookupValue, so it is safe to splice in.
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1`, accountColumns, field)

	account, err := scanAccount(r.db.QueryRow(ctx, query, v))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("field", string(field)).Wrap(err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, id int64, fields AccountFields) error {
	values, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(values))
	for field := range values {
		names = append(names, string(field))
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+1))
		args = append(args, values[AccountField(name)])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.Exec(ctx, query, args...)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", id).Wrap(err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) ConsumeResetToken(ctx context.Context, resetToken, hashedCredential string) (*models.Account, error) {
	if resetToken == "" {
		return nil, ErrNotFound
	}

	query := `UPDATE accounts
              SET hashed_credential = $1, reset_token = NULL, updated_at = NOW()
              WHERE reset_token = $2
              RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, hashedCredential, resetToken))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_RESET_FAILED").With("operation", "consume reset token").Wrap(err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) ClearSessionToken(ctx context.Context, sessionToken string) (bool, error) {
	if sessionToken == "" {
		return false, nil
	}

	query := `UPDATE accounts
              SET session_token = NULL, session_created_at = NULL, updated_at = NOW()
              WHERE session_token = $1`

	result, err := r.db.Exec(ctx, query, sessionToken)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "clear session token").Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.HashedCredential,
		&account.SessionToken,
		&account.SessionCreatedAt,
		&account.ResetToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
