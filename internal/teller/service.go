package teller

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/ledger"
	"github.com/palm-pay/palm_pay/internal/money"
	"github.com/palm-pay/palm_pay/internal/notification"
)

// ErrSameAccount is returned when a transfer names the same account on both sides.
var ErrSameAccount = errors.New("cannot transfer to the same account")

const (
	noteDeposit  = "Cash deposit"
	noteWithdraw = "Cash withdrawal"
)

// TransferResult describes the outcome of a committed transfer.
type TransferResult struct {
	TransferID  string
	FromBalance money.Amount
	ToBalance   money.Amount
	CompletedAt time.Time
}

// Service performs PIN-gated ledger operations. Every mutation holds the
// in-process lock of each account it touches and runs as one unit of work.
type Service struct {
	store        ledger.Store
	auth         *account.Authenticator
	notifier     notification.Notifier
	locks        *Locker
	logger       *slog.Logger
	historyLimit int
	historyMax   int
}

// NewService wires the teller. auth must resolve accounts through
// store.Accounts(); mutations rebind it to their unit of work. historyLimit is used when a caller asks for a
// non-positive limit and historyMax caps any request.
func NewService(store ledger.Store, auth *account.Authenticator, notifier notification.Notifier, logger *slog.Logger, historyLimit, historyMax int) *Service {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	if historyMax < historyLimit {
		historyMax = historyLimit
	}
	return &Service{
		store:        store,
		auth:         auth,
		notifier:     notifier,
		locks:        NewLocker(),
		logger:       logger,
		historyLimit: historyLimit,
		historyMax:   historyMax,
	}
}

// Deposit credits amount to the account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, number, pin, amount string) (money.Amount, error) {
	number = strings.TrimSpace(number)
	unlock := s.locks.Lock(number)
	defer unlock()

	var entry ledger.Entry
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Accounts.Lock(ctx, number); err != nil {
			return err
		}
		acct, err := s.auth.Using(tx.Accounts).Authorize(ctx, number, pin)
		if err != nil {
			return err
		}
		value, err := money.ParsePositive(amount)
		if err != nil {
			return err
		}
		next, err := acct.Balance.Add(value)
		if err != nil {
			return err
		}
		if err := tx.Accounts.SetBalance(ctx, number, next); err != nil {
			return err
		}
		entry, err = tx.Log.Append(ctx, ledger.Entry{
			AccountNumber: number,
			Kind:          ledger.KindDeposit,
			Amount:        value,
			BalanceAfter:  next,
			Note:          noteDeposit,
		})
		return err
	})
	if err != nil {
		s.rejected(ctx, "deposit", number, err)
		return 0, err
	}

	s.logger.InfoContext(ctx, "deposit completed",
		slog.String("account_number", number),
		slog.String("amount", entry.Amount.String()),
		slog.Int64("entry_id", entry.ID))
	s.notify(ctx, notification.Message{
		Kind:          notification.KindDeposit,
		AccountNumber: number,
		Amount:        entry.Amount,
		BalanceAfter:  entry.BalanceAfter,
		Body:          fmt.Sprintf("Deposit successful. New balance: %s", entry.BalanceAfter),
		OccurredAt:    entry.CreatedAt,
	})
	return entry.BalanceAfter, nil
}

// Withdraw debits amount from the account and returns the new balance.
func (s *Service) Withdraw(ctx context.Context, number, pin, amount string) (money.Amount, error) {
	number = strings.TrimSpace(number)
	unlock := s.locks.Lock(number)
	defer unlock()

	var entry ledger.Entry
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Accounts.Lock(ctx, number); err != nil {
			return err
		}
		acct, err := s.auth.Using(tx.Accounts).Authorize(ctx, number, pin)
		if err != nil {
			return err
		}
		value, err := money.ParsePositive(amount)
		if err != nil {
			return err
		}
		if acct.Balance < value {
			return ledger.ErrInsufficientBalance
		}
		next, err := acct.Balance.Sub(value)
		if err != nil {
			return err
		}
		if err := tx.Accounts.SetBalance(ctx, number, next); err != nil {
			return err
		}
		entry, err = tx.Log.Append(ctx, ledger.Entry{
			AccountNumber: number,
			Kind:          ledger.KindWithdraw,
			Amount:        value,
			BalanceAfter:  next,
			Note:          noteWithdraw,
		})
		return err
	})
	if err != nil {
		s.rejected(ctx, "withdraw", number, err)
		return 0, err
	}

	s.logger.InfoContext(ctx, "withdrawal completed",
		slog.String("account_number", number),
		slog.String("amount", entry.Amount.String()),
		slog.Int64("entry_id", entry.ID))
	s.notify(ctx, notification.Message{
		Kind:          notification.KindWithdraw,
		AccountNumber: number,
		Amount:        entry.Amount,
		BalanceAfter:  entry.BalanceAfter,
		Body:          fmt.Sprintf("Withdrawal successful. New balance: %s", entry.BalanceAfter),
		OccurredAt:    entry.CreatedAt,
	})
	return entry.BalanceAfter, nil
}

// Transfer moves amount from one account to another. The debit, the credit
// and both log entries commit together or not at all.
func (s *Service) Transfer(ctx context.Context, from, pin, to, amount string) (TransferResult, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	unlock := s.locks.Lock(from, to)
	defer unlock()

	var out, in ledger.Entry
	transferID := uuid.New().String()
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Accounts.Lock(ctx, from, to); err != nil {
			return err
		}
		source, found, err := tx.Accounts.Find(ctx, from)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("sender %w", account.ErrAccountNotFound)
		}
		dest, found, err := tx.Accounts.Find(ctx, to)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("receiver %w", account.ErrAccountNotFound)
		}
		if source.Number == dest.Number {
			return ErrSameAccount
		}
		if !s.auth.Verify(source, pin) {
			return account.ErrInvalidPIN
		}
		value, err := money.ParsePositive(amount)
		if err != nil {
			return err
		}
		if source.Balance < value {
			return ledger.ErrInsufficientBalance
		}
		debited, err := source.Balance.Sub(value)
		if err != nil {
			return err
		}
		credited, err := dest.Balance.Add(value)
		if err != nil {
			return err
		}

		if err := tx.Accounts.SetBalance(ctx, from, debited); err != nil {
			return err
		}
		out, err = tx.Log.Append(ctx, ledger.Entry{
			AccountNumber: from,
			Kind:          ledger.KindTransferOut,
			Amount:        value,
			BalanceAfter:  debited,
			Note:          "To " + to,
			TransferID:    transferID,
		})
		if err != nil {
			return err
		}
		if err := tx.Accounts.SetBalance(ctx, to, credited); err != nil {
			return err
		}
		in, err = tx.Log.Append(ctx, ledger.Entry{
			AccountNumber: to,
			Kind:          ledger.KindTransferIn,
			Amount:        value,
			BalanceAfter:  credited,
			Note:          "From " + from,
			TransferID:    transferID,
		})
		return err
	})
	if err != nil {
		s.rejected(ctx, "transfer", from, err)
		return TransferResult{}, err
	}

	result := TransferResult{
		TransferID:  transferID,
		FromBalance: out.BalanceAfter,
		ToBalance:   in.BalanceAfter,
		CompletedAt: in.CreatedAt,
	}
	s.logger.InfoContext(ctx, "transfer completed",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("amount", out.Amount.String()),
		slog.String("transfer_id", transferID))
	s.notify(ctx, notification.Message{
		Kind:          notification.KindTransfer,
		AccountNumber: from,
		Counterparty:  to,
		Amount:        out.Amount,
		BalanceAfter:  out.BalanceAfter,
		TransferID:    transferID,
		Body:          fmt.Sprintf("Transferred %s from %s to %s", out.Amount, from, to),
		OccurredAt:    result.CompletedAt,
	})
	s.notify(ctx, notification.Message{
		Kind:          notification.KindTransfer,
		AccountNumber: to,
		Counterparty:  from,
		Amount:        in.Amount,
		BalanceAfter:  in.BalanceAfter,
		TransferID:    transferID,
		Body:          fmt.Sprintf("You received %s from %s", in.Amount, from),
		OccurredAt:    result.CompletedAt,
	})
	return result, nil
}

// BalanceOf returns the current balance once the PIN checks out.
func (s *Service) BalanceOf(ctx context.Context, number, pin string) (money.Amount, error) {
	acct, err := s.auth.Authorize(ctx, strings.TrimSpace(number), pin)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// HistoryOf returns the account's most recent entries, newest first. The
// sequence queries the log each time it is ranged over.
func (s *Service) HistoryOf(ctx context.Context, number, pin string, limit int) (iter.Seq2[ledger.Entry, error], error) {
	number = strings.TrimSpace(number)
	if _, err := s.auth.Authorize(ctx, number, pin); err != nil {
		return nil, err
	}
	return s.store.Log().Recent(ctx, number, s.historySize(limit)), nil
}

func (s *Service) historySize(limit int) int {
	switch {
	case limit <= 0:
		return s.historyLimit
	case limit > s.historyMax:
		return s.historyMax
	default:
		return limit
	}
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("kind", message.Kind),
			slog.String("account_number", message.AccountNumber),
			slog.Any("error", err))
	}
}

func (s *Service) rejected(ctx context.Context, op, number string, err error) {
	level := slog.LevelInfo
	if errors.Is(err, infra.ErrStorageUnavailable) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, op+" rejected",
		slog.String("account_number", number),
		slog.Any("error", err))
}
