package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	h := Hasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Compare(hash, "correct horse"); err != nil {
		t.Fatal("expected password to match:", err)
	}
	if err := h.Compare(hash, "battery staple"); !errors.Is(err, ErrMismatch) {
		t.Fatal("expected ErrMismatch, got", err)
	}
	if err := h.Compare("not a hash", "x"); err == nil || errors.Is(err, ErrMismatch) {
		t.Fatal("expected a hash error, got", err)
	}

	if _, err := h.Hash(strings.Repeat("x", 72)); err != nil {
		t.Fatal("72 bytes must be accepted:", err)
	}
	if _, err := h.Hash(strings.Repeat("x", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatal("expected ErrPasswordTooLong, got", err)
	}
}
