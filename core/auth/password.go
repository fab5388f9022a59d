package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost passwords are hashed with
const DefaultCost = 10

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// ErrMismatch is returned when a password does not match its hash
var ErrMismatch = errors.New("password does not match")

// Hasher hashes and verifies passwords with bcrypt
type Hasher struct {
	Cost int
}

// Hash returns the bcrypt hash of password
func (h Hasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare returns nil if password matches hash, ErrMismatch if it does not
func (h Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
