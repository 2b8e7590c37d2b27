package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PasswordCost is the bcrypt work factor for new hashes.
	PasswordCost = 10
	// MaxPasswordBytes is the longest password bcrypt accepts.
	MaxPasswordBytes = 72
)

var (
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// HashPassword returns a salted one-way hash of password.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword checks password against a hash produced by HashPassword.
func ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}
