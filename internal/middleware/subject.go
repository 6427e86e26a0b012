package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// subjectAccount returns the account a request acts on: the transfer source
// when present, otherwise account_number. Empty when the body names neither.
func subjectAccount(c *fiber.Ctx) string {
	var req struct {
		AccountNumber string `json:"account_number" form:"account_number"`
		FromAccount   string `json:"from_account" form:"from_account"`
	}
	_ = c.BodyParser(&req)
	if subject := strings.TrimSpace(req.FromAccount); subject != "" {
		return subject
	}
	return strings.TrimSpace(req.AccountNumber)
}
