package core

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// dummyHash is compared against when the account does not exist so that a
// failed lookup costs the same as a failed password check.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2/aqTbE.wQvXCFhwp1bUqsC")

// PasswordHasher hashes and verifies doctor passwords.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a bcrypt hasher. Costs outside the bcrypt range
// fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", domain.ValidationError{Entity: domain.EntityDoctor, Reasons: []string{"password must not be empty"}}
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

// Compare checks password against hash in constant time. A mismatch or an
// unparseable hash both yield domain.ErrUnauthorized.
func (h PasswordHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrUnauthorized
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
}

// burn performs a comparison whose result is discarded.
func (h PasswordHasher) burn(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
