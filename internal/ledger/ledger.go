package ledger

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/money"
)

// ErrInsufficientBalance occurs when the source account cannot cover a
// withdrawal or outgoing transfer.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Kind classifies a ledger entry.
type Kind string

const (
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
	KindTransferOut Kind = "transfer_out"
	KindTransferIn  Kind = "transfer_in"
)

// Entry is one immutable line of an account's transaction history.
type Entry struct {
	ID            int64
	AccountNumber string
	Kind          Kind
	Amount        money.Amount
	BalanceAfter  money.Amount
	Note          string
	// TransferID links the transfer_out and transfer_in legs of one transfer.
	TransferID string
	CreatedAt  time.Time
}

// Log is the append-only transaction history.
type Log interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	// Recent yields at most limit entries for the account, newest first. The
	// query runs when the sequence is ranged over, and again on every range.
	Recent(ctx context.Context, number string, limit int) iter.Seq2[Entry, error]
}

// Tx exposes the repositories bound to a single unit of work.
type Tx struct {
	Accounts account.Repository
	Log      Log
}

// Store owns accounts and their transaction log. Atomic runs fn as one
// all-or-nothing unit: if fn returns an error nothing it wrote is kept.
type Store interface {
	Accounts() account.Repository
	Log() Log
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Collect drains a Recent sequence into a slice.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var entries []Entry
	for entry, err := range seq {
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
