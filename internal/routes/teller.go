package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/palm-pay/palm_pay/internal/teller"
)

// RegisterTellerRoutes wires the PIN-gated ledger operations. pinLimiter runs
// before every handler that checks a PIN.
func RegisterTellerRoutes(router fiber.Router, handler *teller.Handler, pinLimiter fiber.Handler) {
	router.Post("/deposit", pinLimiter, handler.Deposit)
	router.Post("/withdraw", pinLimiter, handler.Withdraw)
	router.Post("/transfer", pinLimiter, handler.Transfer)
	router.Post("/balance", pinLimiter, handler.Balance)
	router.Post("/history", pinLimiter, handler.History)
}
