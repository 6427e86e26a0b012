package account

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// ValidPIN reports whether pin, once trimmed, is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(strings.TrimSpace(pin))
}

// Authenticator checks presented PINs against stored bcrypt hashes. Malformed
// PINs and unknown accounts are compared against a dummy hash so every
// rejection costs one bcrypt comparison.
type Authenticator struct {
	repo  Repository
	dummy []byte
}

// NewAuthenticator builds an authenticator whose dummy hash uses cost, which
// should match the cost used to hash real PINs.
func NewAuthenticator(repo Repository, cost int) (*Authenticator, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("0000"), cost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{repo: repo, dummy: dummy}, nil
}

// Using returns a copy that resolves accounts through repo, typically one
// bound to an open unit of work.
func (a *Authenticator) Using(repo Repository) *Authenticator {
	return &Authenticator{repo: repo, dummy: a.dummy}
}

// Authorize resolves the account and checks pin against it. Rejections are
// ErrAccountNotFound or ErrInvalidPIN; any other error is a storage fault.
func (a *Authenticator) Authorize(ctx context.Context, number, pin string) (Account, error) {
	account, found, err := a.repo.Find(ctx, number)
	if err != nil {
		return Account{}, err
	}
	if !found {
		a.burn(pin)
		return Account{}, ErrAccountNotFound
	}
	if !a.Verify(account, pin) {
		return Account{}, ErrInvalidPIN
	}
	return account, nil
}

// Authenticate reports whether pin unlocks the account. The error is non-nil
// only when the account could not be read from storage.
func (a *Authenticator) Authenticate(ctx context.Context, number, pin string) (bool, error) {
	_, err := a.Authorize(ctx, number, pin)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidPIN):
		return false, nil
	default:
		return false, err
	}
}

// Verify checks pin against an already loaded account.
func (a *Authenticator) Verify(account Account, pin string) bool {
	pin = strings.TrimSpace(pin)
	if !pinPattern.MatchString(pin) || len(account.PINHash) == 0 {
		a.burn(pin)
		return false
	}
	return bcrypt.CompareHashAndPassword(account.PINHash, []byte(pin)) == nil
}

func (a *Authenticator) burn(pin string) {
	_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(pin))
}
