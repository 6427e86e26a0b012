package account

import (
	"time"

	"github.com/palm-pay/palm_pay/internal/money"
)

// Account is a registered account holder and their current balance.
type Account struct {
	ID        string
	Number    string
	Name      string
	Phone     string
	Address   string
	Type      string
	PINHash   []byte
	Balance   money.Amount
	Biometric []byte
	CreatedAt time.Time
}

// RegisterInput is the data captured at registration.
type RegisterInput struct {
	Name      string
	Number    string
	Phone     string
	Address   string
	Type      string
	PIN       string
	Biometric []byte
}
