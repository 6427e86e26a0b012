package account

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/money"
)

// Handler exposes account registration and listing endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name          string `json:"name" form:"name"`
	AccountNumber string `json:"account_number" form:"account_number"`
	Phone         string `json:"phone" form:"phone"`
	Address       string `json:"address" form:"address"`
	AccountType   string `json:"account_type" form:"account_type"`
	PIN           string `json:"pin" form:"pin"`
	HandImage     string `json:"hand_image" form:"hand_image"`
}

type accountResponse struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	AccountNumber string        `json:"account_number"`
	AccountType   string        `json:"account_type,omitempty"`
	Balance       *money.Amount `json:"balance,omitempty"`
	HandImage     string        `json:"hand_image,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Register handles account onboarding. The hand image travels base64 encoded.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var image []byte
	if req.HandImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.HandImage)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "hand_image must be base64 encoded")
		}
		image = decoded
	}

	acct, err := h.service.Register(c.UserContext(), RegisterInput{
		Name:      req.Name,
		Number:    req.AccountNumber,
		Phone:     req.Phone,
		Address:   req.Address,
		Type:      req.AccountType,
		PIN:       req.PIN,
		Biometric: image,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrDuplicateAccount):
			return fiber.NewError(http.StatusConflict, "Account number already exists. Try a different one.")
		case errors.Is(err, infra.ErrStorageUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	resp := toResponse(acct, false)
	resp.Balance = &acct.Balance
	return c.Status(http.StatusCreated).JSON(resp)
}

// List returns every account with its hand image for display. Balances stay
// behind the PIN-gated balance endpoint.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.List(c.UserContext())
	if err != nil {
		if errors.Is(err, infra.ErrStorageUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toResponse(acct, true))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": out})
}

func toResponse(acct Account, withImage bool) accountResponse {
	resp := accountResponse{
		ID:            acct.ID,
		Name:          acct.Name,
		AccountNumber: acct.Number,
		AccountType:   acct.Type,
		CreatedAt:     acct.CreatedAt,
	}
	if withImage && len(acct.Biometric) > 0 {
		resp.HandImage = base64.StdEncoding.EncodeToString(acct.Biometric)
	}
	return resp
}
