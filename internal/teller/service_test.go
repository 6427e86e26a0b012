package teller_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/ledger"
	"github.com/palm-pay/palm_pay/internal/logging"
	"github.com/palm-pay/palm_pay/internal/money"
	"github.com/palm-pay/palm_pay/internal/notification"
	mock_notification "github.com/palm-pay/palm_pay/internal/notification/mocks"
	"github.com/palm-pay/palm_pay/internal/teller"
)

type fixture struct {
	svc   *teller.Service
	store ledger.Store
}

func newFixture(t *testing.T, notifier notification.Notifier, accounts map[string]string) fixture {
	t.Helper()
	store := ledger.NewInMemory()
	registrar := account.NewService(store.Accounts(), bcrypt.MinCost, 0)
	for number, pin := range accounts {
		_, err := registrar.Register(context.Background(), account.RegisterInput{Name: "holder " + number, Number: number, PIN: pin})
		require.NoError(t, err)
	}
	auth, err := account.NewAuthenticator(store.Accounts(), bcrypt.MinCost)
	require.NoError(t, err)
	return fixture{
		svc:   teller.NewService(store, auth, notifier, logging.Discard(), 100, 500),
		store: store,
	}
}

func (f fixture) balance(t *testing.T, number string) money.Amount {
	t.Helper()
	acct, found, err := f.store.Accounts().Find(context.Background(), number)
	require.NoError(t, err)
	require.True(t, found)
	return acct.Balance
}

func (f fixture) history(t *testing.T, number string) []ledger.Entry {
	t.Helper()
	entries, err := ledger.Collect(f.store.Log().Recent(context.Background(), number, 100))
	require.NoError(t, err)
	return entries
}

func TestService_DepositWithdrawTransferScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	notifier := mock_notification.NewMockNotifier(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	f := newFixture(t, notifier, map[string]string{"A1": "1234", "A2": "5678"})
	ctx := context.Background()

	balance, err := f.svc.Deposit(ctx, "A1", "1234", "100.00")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(10000), balance)

	_, err = f.svc.Withdraw(ctx, "A1", "1234", "150")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, money.Amount(10000), f.balance(t, "A1"))

	res, err := f.svc.Transfer(ctx, "A1", "1234", "A2", "40.50")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(5950), res.FromBalance)
	assert.Equal(t, money.Amount(4050), res.ToBalance)
	assert.NotEmpty(t, res.TransferID)

	balance, err = f.svc.BalanceOf(ctx, "A2", "5678")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(4050), balance)

	a1 := f.history(t, "A1")
	require.Len(t, a1, 2)
	assert.Equal(t, ledger.KindTransferOut, a1[0].Kind)
	assert.Equal(t, "To A2", a1[0].Note)
	assert.Equal(t, ledger.KindDeposit, a1[1].Kind)
	assert.Equal(t, "Cash deposit", a1[1].Note)

	a2 := f.history(t, "A2")
	require.Len(t, a2, 1)
	assert.Equal(t, ledger.KindTransferIn, a2[0].Kind)
	assert.Equal(t, "From A1", a2[0].Note)
	assert.Equal(t, res.TransferID, a2[0].TransferID)
	assert.Equal(t, res.TransferID, a1[0].TransferID)
}

func TestService_ValidationOrder(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1234", "A2": "5678"})
	ctx := context.Background()
	_, err := f.svc.Deposit(ctx, "A1", "1234", "20")
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "unknown account wins over bad PIN and amount",
			run: func() error {
				_, err := f.svc.Deposit(ctx, "ZZ", "bad", "-1")
				return err
			},
			want: account.ErrAccountNotFound,
		},
		{
			name: "bad PIN wins over bad amount",
			run: func() error {
				_, err := f.svc.Withdraw(ctx, "A1", "9999", "abc")
				return err
			},
			want: account.ErrInvalidPIN,
		},
		{
			name: "malformed PIN is an invalid PIN",
			run: func() error {
				_, err := f.svc.Deposit(ctx, "A1", "12a4", "1")
				return err
			},
			want: account.ErrInvalidPIN,
		},
		{
			name: "non numeric amount",
			run: func() error {
				_, err := f.svc.Deposit(ctx, "A1", "1234", "ten")
				return err
			},
			want: money.ErrInvalidAmount,
		},
		{
			name: "zero amount",
			run: func() error {
				_, err := f.svc.Withdraw(ctx, "A1", "1234", "0")
				return err
			},
			want: money.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			run: func() error {
				_, err := f.svc.Deposit(ctx, "A1", "1234", "-5")
				return err
			},
			want: money.ErrInvalidAmount,
		},
		{
			name: "missing destination wins over bad PIN",
			run: func() error {
				_, err := f.svc.Transfer(ctx, "A1", "0000", "ZZ", "1")
				return err
			},
			want: account.ErrAccountNotFound,
		},
		{
			name: "same account",
			run: func() error {
				_, err := f.svc.Transfer(ctx, "A1", "1234", "A1", "1")
				return err
			},
			want: teller.ErrSameAccount,
		},
		{
			name: "transfer pin belongs to the source",
			run: func() error {
				_, err := f.svc.Transfer(ctx, "A1", "5678", "A2", "1")
				return err
			},
			want: account.ErrInvalidPIN,
		},
		{
			name: "transfer beyond balance",
			run: func() error {
				_, err := f.svc.Transfer(ctx, "A1", "1234", "A2", "20.01")
				return err
			},
			want: ledger.ErrInsufficientBalance,
		},
		{
			name: "balance with wrong PIN",
			run: func() error {
				_, err := f.svc.BalanceOf(ctx, "A1", "4321")
				return err
			},
			want: account.ErrInvalidPIN,
		},
		{
			name: "history of unknown account",
			run: func() error {
				_, err := f.svc.HistoryOf(ctx, "ZZ", "1234", 10)
				return err
			},
			want: account.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}

	assert.Equal(t, money.Amount(2000), f.balance(t, "A1"))
	assert.Equal(t, money.Amount(0), f.balance(t, "A2"))
	assert.Len(t, f.history(t, "A1"), 1)
	assert.Empty(t, f.history(t, "A2"))
}

func TestService_TransferNotFoundNamesTheSide(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1234"})
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, "ZZ", "1234", "A1", "1")
	assert.EqualError(t, err, "sender account not found")

	_, err = f.svc.Transfer(ctx, "A1", "1234", "ZZ", "1")
	assert.EqualError(t, err, "receiver account not found")
}

func TestService_DepositRoundsToCents(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1234"})

	balance, err := f.svc.Deposit(context.Background(), "A1", "1234", "0.015")
	require.NoError(t, err)
	assert.Equal(t, "0.02", balance.String())

	_, err = f.svc.Deposit(context.Background(), "A1", "1234", "0.004")
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
}

func TestService_DepositOverflowIsRejected(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1234"})
	ctx := context.Background()
	require.NoError(t, f.store.Accounts().SetBalance(ctx, "A1", money.Amount(1<<62)))

	_, err := f.svc.Deposit(ctx, "A1", "1234", "50000000000000000")
	assert.ErrorIs(t, err, money.ErrInvalidAmount)
	assert.Equal(t, money.Amount(1<<62), f.balance(t, "A1"))
}

func TestService_NotifierFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	notifier := mock_notification.NewMockNotifier(ctrl)
	notifier.EXPECT().
		Send(gomock.Any(), gomock.AssignableToTypeOf(notification.Message{})).
		DoAndReturn(func(_ context.Context, msg notification.Message) error {
			assert.Equal(t, notification.KindDeposit, msg.Kind)
			assert.Equal(t, "A1", msg.AccountNumber)
			assert.Equal(t, money.Amount(500), msg.BalanceAfter)
			return errors.New("broker down")
		})

	f := newFixture(t, notifier, map[string]string{"A1": "1234"})
	balance, err := f.svc.Deposit(context.Background(), "A1", "1234", "5")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(500), balance)
}

func TestService_RejectedOperationsDoNotNotify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	notifier := mock_notification.NewMockNotifier(ctrl)
	notifier.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

	f := newFixture(t, notifier, map[string]string{"A1": "1234", "A2": "5678"})
	_, err := f.svc.Withdraw(context.Background(), "A1", "1234", "1")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	_, err = f.svc.Transfer(context.Background(), "A1", "0000", "A2", "1")
	assert.ErrorIs(t, err, account.ErrInvalidPIN)
}

func TestService_HistoryLimits(t *testing.T) {
	store := ledger.NewInMemory()
	registrar := account.NewService(store.Accounts(), bcrypt.MinCost, 0)
	_, err := registrar.Register(context.Background(), account.RegisterInput{Name: "Ada", Number: "A1", PIN: "1234"})
	require.NoError(t, err)
	auth, err := account.NewAuthenticator(store.Accounts(), bcrypt.MinCost)
	require.NoError(t, err)
	svc := teller.NewService(store, auth, nil, logging.Discard(), 3, 5)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		_, err := svc.Deposit(ctx, "A1", "1234", fmt.Sprint(i))
		require.NoError(t, err)
	}

	count := func(limit int) int {
		seq, err := svc.HistoryOf(ctx, "A1", "1234", limit)
		require.NoError(t, err)
		entries, err := ledger.Collect(seq)
		require.NoError(t, err)
		return len(entries)
	}
	assert.Equal(t, 3, count(0))
	assert.Equal(t, 3, count(-1))
	assert.Equal(t, 2, count(2))
	assert.Equal(t, 5, count(50))

	seq, err := svc.HistoryOf(ctx, "A1", "1234", 1)
	require.NoError(t, err)
	first, err := ledger.Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(800), first[0].Amount)
}

func TestService_ConcurrentDepositsAreNotLost(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1234"})
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Deposit(ctx, "A1", "1234", "1.25")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, money.Amount(workers*125), f.balance(t, "A1"))
	assert.Len(t, f.history(t, "A1"), workers)
}

func TestService_ConcurrentTransfersConserveTotal(t *testing.T) {
	f := newFixture(t, nil, map[string]string{"A1": "1111", "A2": "2222", "A3": "3333"})
	ctx := context.Background()
	pins := map[string]string{"A1": "1111", "A2": "2222", "A3": "3333"}
	for number, pin := range pins {
		_, err := f.svc.Deposit(ctx, number, pin, "10")
		require.NoError(t, err)
	}

	pairs := [][2]string{{"A1", "A2"}, {"A2", "A1"}, {"A2", "A3"}, {"A3", "A1"}, {"A1", "A3"}, {"A3", "A2"}}
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		pair := pairs[i%len(pairs)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, pair[0], pins[pair[0]], pair[1], "0.75")
			if err != nil && !errors.Is(err, ledger.ErrInsufficientBalance) {
				t.Errorf("transfer %s->%s: %v", pair[0], pair[1], err)
			}
		}()
	}
	wg.Wait()

	var total money.Amount
	for number := range pins {
		b := f.balance(t, number)
		assert.GreaterOrEqual(t, int64(b), int64(0))
		total += b
	}
	assert.Equal(t, money.Amount(3000), total)

	links := map[string]int{}
	for number := range pins {
		for _, entry := range f.history(t, number) {
			if entry.TransferID != "" {
				links[entry.TransferID]++
			}
		}
	}
	for id, legs := range links {
		assert.Equalf(t, 2, legs, "transfer %s should have exactly two legs", id)
	}
}
