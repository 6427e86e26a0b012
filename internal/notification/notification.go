package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/palm-pay/palm_pay/internal/money"
)

const (
	// KindDeposit indicates cash was credited to an account.
	KindDeposit = "deposit"
	// KindWithdraw indicates cash was debited from an account.
	KindWithdraw = "withdraw"
	// KindTransfer indicates funds moved between two accounts.
	KindTransfer = "transfer"
)

// Message describes a ledger event delivered after the operation committed.
type Message struct {
	Kind          string       `json:"kind"`
	AccountNumber string       `json:"account_number"`
	Counterparty  string       `json:"counterparty,omitempty"`
	Amount        money.Amount `json:"amount"`
	BalanceAfter  money.Amount `json:"balance_after"`
	TransferID    string       `json:"transfer_id,omitempty"`
	Body          string       `json:"body"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

//go:generate mockgen -destination=mocks/mock_notification.go -source=notification.go Notifier

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("kind", message.Kind),
		slog.String("account_number", message.AccountNumber),
		slog.String("amount", message.Amount.String()),
		slog.String("balance_after", message.BalanceAfter.String()),
		slog.String("body", message.Body),
	}
	if message.TransferID != "" {
		attrs = append(attrs, slog.String("transfer_id", message.TransferID))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
