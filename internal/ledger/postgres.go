package ledger

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/money"
)

// PostgresStore persists accounts and ledger entries in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Accounts returns a repository that autocommits each statement.
func (s *PostgresStore) Accounts() account.Repository {
	return account.NewPostgresRepository(s.db)
}

// Log returns a transaction log that autocommits each statement.
func (s *PostgresStore) Log() Log {
	return NewPostgresLog(s.db)
}

// Atomic runs fn inside a database transaction. The connection goes back to
// the pool on every path.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return infra.StorageError("begin transaction", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, Tx{Accounts: account.NewPostgresRepository(tx), Log: NewPostgresLog(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return infra.StorageError("commit transaction", err)
	}
	return nil
}

// PostgresLog stores ledger entries in the transactions table.
type PostgresLog struct {
	db infra.DBTX
}

// NewPostgresLog builds a log over the pool or an open transaction.
func NewPostgresLog(db infra.DBTX) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts one entry and returns it with its id and timestamp.
func (l *PostgresLog) Append(ctx context.Context, entry Entry) (Entry, error) {
	var transferID *uuid.UUID
	if entry.TransferID != "" {
		id, err := uuid.Parse(entry.TransferID)
		if err != nil {
			return Entry{}, err
		}
		transferID = &id
	}

	const query = `INSERT INTO transactions (account_number, type, amount, balance_after, note, transfer_id)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	var createdAt time.Time
	if err := l.db.QueryRow(ctx, query, entry.AccountNumber, string(entry.Kind), int64(entry.Amount),
		int64(entry.BalanceAfter), entry.Note, transferID).Scan(&entry.ID, &createdAt); err != nil {
		return Entry{}, infra.StorageError("append transaction", err)
	}
	entry.CreatedAt = createdAt.UTC()
	return entry, nil
}

// Recent streams the newest entries for an account straight from the cursor.
func (l *PostgresLog) Recent(ctx context.Context, number string, limit int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if limit <= 0 {
			return
		}
		const query = `SELECT id, account_number, type, amount, balance_after, note, transfer_id, created_at
            FROM transactions WHERE account_number = $1 ORDER BY id DESC LIMIT $2`
		rows, err := l.db.Query(ctx, query, number, limit)
		if err != nil {
			yield(Entry{}, infra.StorageError("query transactions", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				entry        Entry
				kind         string
				amount       int64
				balanceAfter int64
				transferID   *uuid.UUID
				createdAt    time.Time
			)
			if err := rows.Scan(&entry.ID, &entry.AccountNumber, &kind, &amount, &balanceAfter,
				&entry.Note, &transferID, &createdAt); err != nil {
				yield(Entry{}, infra.StorageError("scan transaction", err))
				return
			}
			entry.Kind = Kind(kind)
			entry.Amount = money.Amount(amount)
			entry.BalanceAfter = money.Amount(balanceAfter)
			if transferID != nil {
				entry.TransferID = transferID.String()
			}
			entry.CreatedAt = createdAt.UTC()
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, infra.StorageError("read transactions", err))
		}
	}
}
