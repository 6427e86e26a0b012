package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages account registration.
type Service struct {
	repo         Repository
	pinCost      int
	maxBiometric int
}

// NewService creates a registration service. pinCost is the bcrypt cost for
// stored PIN hashes; maxBiometric caps the hand image size in bytes (0 disables the cap).
func NewService(repo Repository, pinCost, maxBiometric int) *Service {
	return &Service{repo: repo, pinCost: pinCost, maxBiometric: maxBiometric}
}

// Register validates input and stores a new account with a zero balance and a
// hashed PIN.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Account, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Number = strings.TrimSpace(input.Number)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Address = strings.TrimSpace(input.Address)
	input.Type = strings.TrimSpace(input.Type)
	input.PIN = strings.TrimSpace(input.PIN)

	if err := s.validate(input); err != nil {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), s.pinCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash PIN: %w", err)
	}

	account := Account{
		ID:        uuid.New().String(),
		Number:    input.Number,
		Name:      input.Name,
		Phone:     input.Phone,
		Address:   input.Address,
		Type:      input.Type,
		PINHash:   hash,
		Balance:   0,
		Biometric: input.Biometric,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}

	return account, nil
}

// List returns all registered accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) validate(input RegisterInput) error {
	var problems []string
	if input.Name == "" || input.Number == "" || input.PIN == "" {
		problems = append(problems, "Name, Account Number and PIN are required.")
	}
	if !ValidPIN(input.PIN) {
		problems = append(problems, "PIN must be exactly 4 digits.")
	}
	if s.maxBiometric > 0 && len(input.Biometric) > s.maxBiometric {
		problems = append(problems, fmt.Sprintf("Hand image must not exceed %d bytes.", s.maxBiometric))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
