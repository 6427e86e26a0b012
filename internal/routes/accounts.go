package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/palm-pay/palm_pay/internal/account"
)

// RegisterAccountRoutes wires registration and the account listing.
func RegisterAccountRoutes(router fiber.Router, handler *account.Handler) {
	router.Post("/accounts", handler.Register)
	router.Get("/accounts", handler.List)
}
