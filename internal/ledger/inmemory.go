package ledger

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/palm-pay/palm_pay/internal/account"
	"github.com/palm-pay/palm_pay/internal/money"
)

type inMemoryStore struct {
	// mu is held exclusively by a unit of work and for direct writes, and
	// shared by direct reads, so readers never see half of a unit of work.
	mu       sync.RWMutex
	accounts account.Repository
	log      *inMemoryLog
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts: account.NewMemoryRepository(),
		log:      &inMemoryLog{},
	}
}

func (s *inMemoryStore) Accounts() account.Repository {
	return guardedAccounts{mu: &s.mu, inner: s.accounts}
}

func (s *inMemoryStore) Log() Log {
	return guardedLog{mu: &s.mu, inner: s.log}
}

// Atomic stages every write made by fn and applies them only when fn succeeds.
func (s *inMemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &stage{
		accounts: s.accounts,
		log:      s.log,
		created:  make(map[string]account.Account),
		balances: make(map[string]money.Amount),
	}
	if err := fn(ctx, Tx{Accounts: stagedAccounts{st}, Log: stagedLog{st}}); err != nil {
		return err
	}
	return st.commit(ctx)
}

type inMemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	lastID  int64
}

func (l *inMemoryLog) Append(_ context.Context, entry Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastID++
	entry.ID = l.lastID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *inMemoryLog) Recent(_ context.Context, number string, limit int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, entry := range l.recent(number, limit) {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (l *inMemoryLog) recent(number string, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].AccountNumber == number {
			out = append(out, l.entries[i])
		}
	}
	return out
}

func (l *inMemoryLog) nextID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastID + 1
}

type guardedAccounts struct {
	mu    *sync.RWMutex
	inner account.Repository
}

func (g guardedAccounts) Create(ctx context.Context, acct account.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Create(ctx, acct)
}

func (g guardedAccounts) Find(ctx context.Context, number string) (account.Account, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.Find(ctx, number)
}

func (g guardedAccounts) SetBalance(ctx context.Context, number string, balance money.Amount) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.SetBalance(ctx, number, balance)
}

func (g guardedAccounts) Lock(context.Context, ...string) error {
	return nil
}

func (g guardedAccounts) List(ctx context.Context) ([]account.Account, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inner.List(ctx)
}

type guardedLog struct {
	mu    *sync.RWMutex
	inner *inMemoryLog
}

func (g guardedLog) Append(ctx context.Context, entry Entry) (Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inner.Append(ctx, entry)
}

func (g guardedLog) Recent(_ context.Context, number string, limit int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		g.mu.RLock()
		entries := g.inner.recent(number, limit)
		g.mu.RUnlock()
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// stage buffers the writes of one unit of work on top of the committed state.
type stage struct {
	accounts account.Repository
	log      *inMemoryLog
	created  map[string]account.Account
	order    []string
	balances map[string]money.Amount
	entries  []Entry
}

func (st *stage) find(ctx context.Context, number string) (account.Account, bool, error) {
	acct, ok := st.created[number]
	if !ok {
		var err error
		acct, ok, err = st.accounts.Find(ctx, number)
		if err != nil || !ok {
			return account.Account{}, false, err
		}
	}
	if balance, staged := st.balances[number]; staged {
		acct.Balance = balance
	}
	return acct, true, nil
}

func (st *stage) commit(ctx context.Context) error {
	for _, number := range st.order {
		if err := st.accounts.Create(ctx, st.created[number]); err != nil {
			return err
		}
	}
	for number, balance := range st.balances {
		if err := st.accounts.SetBalance(ctx, number, balance); err != nil {
			return err
		}
	}
	for _, entry := range st.entries {
		if _, err := st.log.Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

type stagedAccounts struct{ st *stage }

func (a stagedAccounts) Create(ctx context.Context, acct account.Account) error {
	_, exists, err := a.st.find(ctx, acct.Number)
	if err != nil {
		return err
	}
	if exists {
		return account.ErrDuplicateAccount
	}
	acct.Balance = 0
	a.st.created[acct.Number] = acct
	a.st.order = append(a.st.order, acct.Number)
	return nil
}

func (a stagedAccounts) Find(ctx context.Context, number string) (account.Account, bool, error) {
	return a.st.find(ctx, number)
}

func (a stagedAccounts) SetBalance(ctx context.Context, number string, balance money.Amount) error {
	_, exists, err := a.st.find(ctx, number)
	if err != nil {
		return err
	}
	if !exists {
		return account.ErrAccountNotFound
	}
	a.st.balances[number] = balance
	return nil
}

func (a stagedAccounts) Lock(context.Context, ...string) error {
	return nil
}

func (a stagedAccounts) List(ctx context.Context) ([]account.Account, error) {
	committed, err := a.st.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]account.Account, 0, len(committed)+len(a.st.created))
	for _, number := range a.st.order {
		acct, _, _ := a.st.find(ctx, number)
		out = append(out, acct)
	}
	for _, acct := range committed {
		if balance, staged := a.st.balances[acct.Number]; staged {
			acct.Balance = balance
		}
		out = append(out, acct)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type stagedLog struct{ st *stage }

// Append hands out the id the entry will receive on commit; the unit of work
// holds the store exclusively so no other writer can take it first.
func (l stagedLog) Append(_ context.Context, entry Entry) (Entry, error) {
	entry.ID = l.st.log.nextID() + int64(len(l.st.entries))
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.st.entries = append(l.st.entries, entry)
	return entry, nil
}

func (l stagedLog) Recent(_ context.Context, number string, limit int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var out []Entry
		for i := len(l.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
			if l.st.entries[i].AccountNumber == number {
				out = append(out, l.st.entries[i])
			}
		}
		if remaining := limit - len(out); remaining > 0 {
			out = append(out, l.st.log.recent(number, remaining)...)
		}
		for _, entry := range out {
			if !yield(entry, nil) {
				return
			}
		}
	}
}
