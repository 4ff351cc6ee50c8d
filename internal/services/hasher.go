package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Supported password hasher names.
const (
	HasherSHA256 = "sha256"
	HasherBcrypt = "bcrypt"
)

// SHA256Hasher stores passwords as the lowercase hex SHA-256 digest of the UTF-8 plaintext.
//
// This is unsalted and fast, which makes it a weak password scheme. It is kept as the
// default so stored values stay 64-char hex digests; switch to BcryptHasher for new deployments.
type SHA256Hasher struct{}

// Hash returns the 64-character hex digest of password.
func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// BcryptHasher stores passwords as bcrypt hashes. Stored values are not hex digests.
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// NewPasswordHasher returns the hasher registered under name.
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch name {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
