package teller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/ledger"
	"github.com/palm-pay/palm_pay/internal/money"
)

// Handler exposes the teller operations over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a teller handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// amountField accepts an amount sent either as a JSON string or a JSON number.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a string or a number")
	}
	*a = amountField(n.String())
	return nil
}

type cashRequest struct {
	AccountNumber string      `json:"account_number" form:"account_number"`
	PIN           string      `json:"pin" form:"pin"`
	Amount        amountField `json:"amount" form:"amount"`
}

type transferRequest struct {
	FromAccount string      `json:"from_account" form:"from_account"`
	PIN         string      `json:"pin" form:"pin"`
	ToAccount   string      `json:"to_account" form:"to_account"`
	Amount      amountField `json:"amount" form:"amount"`
}

type balanceRequest struct {
	AccountNumber string `json:"account_number" form:"account_number"`
	PIN           string `json:"pin" form:"pin"`
}

type historyRequest struct {
	AccountNumber string `json:"account_number" form:"account_number"`
	PIN           string `json:"pin" form:"pin"`
	Limit         int    `json:"limit" form:"limit"`
}

type entryResponse struct {
	ID           int64        `json:"id"`
	Type         ledger.Kind  `json:"type"`
	Amount       money.Amount `json:"amount"`
	BalanceAfter money.Amount `json:"balance_after"`
	Note         string       `json:"note"`
	TransferID   string       `json:"transfer_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Deposit credits an account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req cashRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := h.service.Deposit(c.UserContext(), req.AccountNumber, req.PIN, string(req.Amount))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"account_number": req.AccountNumber,
		"new_balance":    balance,
		"message":        "Deposit successful. New balance: " + balance.String(),
	})
}

// Withdraw debits an account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req cashRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := h.service.Withdraw(c.UserContext(), req.AccountNumber, req.PIN, string(req.Amount))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"account_number": req.AccountNumber,
		"new_balance":    balance,
		"message":        "Withdrawal successful. New balance: " + balance.String(),
	})
}

// Transfer moves funds between two accounts.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Transfer(c.UserContext(), req.FromAccount, req.PIN, req.ToAccount, string(req.Amount))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"transfer_id":  res.TransferID,
		"from_account": req.FromAccount,
		"to_account":   req.ToAccount,
		"new_balance":  res.FromBalance,
		"completed_at": res.CompletedAt,
	})
}

// Balance reports the balance of an account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	var req balanceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := h.service.BalanceOf(c.UserContext(), req.AccountNumber, req.PIN)
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{
		"account_number": req.AccountNumber,
		"balance":        balance,
	})
}

// History lists the most recent entries of an account.
func (h *Handler) History(c *fiber.Ctx) error {
	var req historyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	seq, err := h.service.HistoryOf(c.UserContext(), req.AccountNumber, req.PIN, req.Limit)
	if err != nil {
		return statusError(err)
	}
	txns := []entryResponse{}
	for entry, err := range seq {
		if err != nil {
			return statusError(err)
		}
		txns = append(txns, entryResponse{
			ID:           entry.ID,
			Type:         entry.Kind,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			Note:         entry.Note,
			TransferID:   entry.TransferID,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{
		"account_number": req.AccountNumber,
		"transactions":   txns,
	})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrInvalidPIN):
		return fiber.NewError(http.StatusUnauthorized, "invalid PIN")
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, ErrSameAccount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, "insufficient balance")
	case errors.Is(err, infra.ErrStorageUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
