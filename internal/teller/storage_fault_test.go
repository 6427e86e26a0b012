package teller

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/infra"
	"github.com/palm-pay/palm_pay/internal/ledger"
	"github.com/palm-pay/palm_pay/internal/logging"
	"github.com/palm-pay/palm_pay/internal/money"
)

// faults names the accounts whose reads or balance writes fail as if the
// database connection dropped.
type faults struct {
	find       string
	setBalance string
}

type faultyAccounts struct {
	account.Repository
	faults *faults
}

func (f faultyAccounts) Find(ctx context.Context, number string) (account.Account, bool, error) {
	if number == f.faults.find {
		return account.Account{}, false, infra.StorageError("find account", io.EOF)
	}
	return f.Repository.Find(ctx, number)
}

func (f faultyAccounts) SetBalance(ctx context.Context, number string, balance money.Amount) error {
	if number == f.faults.setBalance {
		return infra.StorageError("set balance", io.EOF)
	}
	return f.Repository.SetBalance(ctx, number, balance)
}

type faultyStore struct {
	ledger.Store
	faults *faults
}

func (s faultyStore) Accounts() account.Repository {
	return faultyAccounts{Repository: s.Store.Accounts(), faults: s.faults}
}

func (s faultyStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.Store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		tx.Accounts = faultyAccounts{Repository: tx.Accounts, faults: s.faults}
		return fn(ctx, tx)
	})
}

func newFaultyService(t *testing.T) (*Service, ledger.Store, *faults) {
	t.Helper()
	base := ledger.NewInMemory()
	registrar := account.NewService(base.Accounts(), bcrypt.MinCost, 0)
	for number, pin := range map[string]string{"A1": "1234", "A2": "5678"} {
		if _, err := registrar.Register(context.Background(), account.RegisterInput{Name: number, Number: number, PIN: pin}); err != nil {
			t.Fatalf("register %s: %v", number, err)
		}
	}

	f := &faults{}
	store := faultyStore{Store: base, faults: f}
	auth, err := account.NewAuthenticator(store.Accounts(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	svc := NewService(store, auth, nil, logging.Discard(), 100, 500)
	if _, err := svc.Deposit(context.Background(), "A1", "1234", "50"); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	return svc, base, f
}

func assertUntouched(t *testing.T, store ledger.Store) {
	t.Helper()
	ctx := context.Background()
	for number, want := range map[string]money.Amount{"A1": 5000, "A2": 0} {
		acct, _, err := store.Accounts().Find(ctx, number)
		if err != nil {
			t.Fatalf("find %s: %v", number, err)
		}
		if acct.Balance != want {
			t.Fatalf("%s balance changed to %s", number, acct.Balance)
		}
	}
	a1, _ := ledger.Collect(store.Log().Recent(ctx, "A1", 10))
	a2, _ := ledger.Collect(store.Log().Recent(ctx, "A2", 10))
	if len(a1) != 1 || len(a2) != 0 {
		t.Fatalf("log changed: A1=%+v A2=%+v", a1, a2)
	}
}

func TestServiceStorageFaultsAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		faults faults
		run    func(svc *Service) error
	}{
		{
			name:   "transfer credit fails after the debit",
			faults: faults{setBalance: "A2"},
			run: func(svc *Service) error {
				_, err := svc.Transfer(context.Background(), "A1", "1234", "A2", "20")
				return err
			},
		},
		{
			name:   "withdraw write fails",
			faults: faults{setBalance: "A1"},
			run: func(svc *Service) error {
				_, err := svc.Withdraw(context.Background(), "A1", "1234", "5")
				return err
			},
		},
		{
			name:   "deposit lookup fails",
			faults: faults{find: "A1"},
			run: func(svc *Service) error {
				_, err := svc.Deposit(context.Background(), "A1", "1234", "5")
				return err
			},
		},
		{
			name:   "transfer destination lookup fails",
			faults: faults{find: "A2"},
			run: func(svc *Service) error {
				_, err := svc.Transfer(context.Background(), "A1", "1234", "A2", "5")
				return err
			},
		},
		{
			name:   "balance lookup fails",
			faults: faults{find: "A1"},
			run: func(svc *Service) error {
				_, err := svc.BalanceOf(context.Background(), "A1", "1234")
				return err
			},
		},
		{
			name:   "history lookup fails",
			faults: faults{find: "A1"},
			run: func(svc *Service) error {
				_, err := svc.HistoryOf(context.Background(), "A1", "1234", 10)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, base, f := newFaultyService(t)
			*f = tt.faults

			err := tt.run(svc)
			if !errors.Is(err, infra.ErrStorageUnavailable) {
				t.Fatalf("expected storage unavailable, got %v", err)
			}
			if !errors.Is(err, io.EOF) {
				t.Fatalf("expected the cause to be kept, got %v", err)
			}

			*f = faults{}
			assertUntouched(t, base)
		})
	}
}

func TestHandlerStorageFaultIs503(t *testing.T) {
	svc, base, f := newFaultyService(t)
	h := NewHandler(svc)
	app := fiber.New()
	app.Post("/deposit", h.Deposit)
	app.Post("/transfer", h.Transfer)
	app.Post("/balance", h.Balance)

	f.setBalance = "A2"
	if status, _ := postJSON(t, app, "/transfer", `{"from_account":"A1","pin":"1234","to_account":"A2","amount":"10"}`); status != fiber.StatusServiceUnavailable {
		t.Fatalf("transfer: expected 503 got %d", status)
	}

	*f = faults{find: "A1"}
	if status, _ := postJSON(t, app, "/deposit", `{"account_number":"A1","pin":"1234","amount":"10"}`); status != fiber.StatusServiceUnavailable {
		t.Fatalf("deposit: expected 503 got %d", status)
	}
	if status, _ := postJSON(t, app, "/balance", `{"account_number":"A1","pin":"1234"}`); status != fiber.StatusServiceUnavailable {
		t.Fatalf("balance: expected 503 got %d", status)
	}

	*f = faults{}
	assertUntouched(t, base)
}
