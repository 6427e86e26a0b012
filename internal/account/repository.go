package account

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/money"
)

// Repository persists accounts. Find reports a missing account through its
// boolean result rather than an error.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Find(ctx context.Context, number string) (Account, bool, error)
	SetBalance(ctx context.Context, number string, balance money.Amount) error
	Lock(ctx context.Context, numbers ...string) error
	List(ctx context.Context) ([]Account, error)
}

// PostgresRepository implements Repository using PostgreSQL. It runs against
// either the pool or an open transaction.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account with a zero balance.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts
        (id, account_number, name, phone, address, account_type, pin_hash, balance, biometric, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
		id, account.Number, account.Name, account.Phone, account.Address, account.Type,
		account.PINHash, account.Biometric, account.CreatedAt.UTC())
	if infra.IsUniqueViolation(err) {
		return ErrDuplicateAccount
	}
	return infra.StorageError("create account", err)
}

// Find fetches an account by number.
func (r *PostgresRepository) Find(ctx context.Context, number string) (Account, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT id, account_number, name, phone, address, account_type,
        pin_hash, balance, biometric, created_at FROM accounts WHERE account_number = $1`, number)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, infra.StorageError("find account", err)
	}
	return account, true, nil
}

// SetBalance overwrites the stored balance.
func (r *PostgresRepository) SetBalance(ctx context.Context, number string, balance money.Amount) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE account_number = $2`, int64(balance), number)
	if err != nil {
		return infra.StorageError("set balance", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Lock takes row locks on the given accounts in account number order. Locks
// last until the surrounding transaction ends.
func (r *PostgresRepository) Lock(ctx context.Context, numbers ...string) error {
	sorted := append([]string(nil), numbers...)
	sort.Strings(sorted)
	rows, err := r.db.Query(ctx, `SELECT account_number FROM accounts
        WHERE account_number = ANY($1) ORDER BY account_number FOR UPDATE`, sorted)
	if err != nil {
		return infra.StorageError("lock accounts", err)
	}
	rows.Close()
	return infra.StorageError("lock accounts", rows.Err())
}

// List returns every account, most recently registered first.
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, account_number, name, phone, address, account_type,
        pin_hash, balance, biometric, created_at FROM accounts ORDER BY created_at DESC, account_number`)
	if err != nil {
		return nil, infra.StorageError("list accounts", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, infra.StorageError("scan account", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StorageError("list accounts", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id        uuid.UUID
		balance   int64
		createdAt time.Time
		account   Account
	)
	if err := row.Scan(&id, &account.Number, &account.Name, &account.Phone, &account.Address,
		&account.Type, &account.PINHash, &balance, &account.Biometric, &createdAt); err != nil {
		return Account{}, err
	}
	account.ID = id.String()
	account.Balance = money.Amount(balance)
	account.CreatedAt = createdAt.UTC()
	return account, nil
}
