package account

import (
	"context"
	"sort"
	"sync"

	"github.com/palm-pay/palm_pay/internal/money"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Number]; exists {
		return ErrDuplicateAccount
	}
	account.Balance = 0
	r.accounts[account.Number] = clone(account)
	return nil
}

func (r *memoryRepository) Find(_ context.Context, number string) (Account, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[number]
	if !ok {
		return Account{}, false, nil
	}
	return clone(account), true, nil
}

func (r *memoryRepository) SetBalance(_ context.Context, number string, balance money.Amount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[number]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance = balance
	r.accounts[number] = account
	return nil
}

// Lock is a no-op; callers serialize through the store's unit of work.
func (r *memoryRepository) Lock(context.Context, ...string) error {
	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, clone(account))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func clone(account Account) Account {
	account.PINHash = append([]byte(nil), account.PINHash...)
	if account.Biometric != nil {
		account.Biometric = append([]byte(nil), account.Biometric...)
	}
	return account
}
