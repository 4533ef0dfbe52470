package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return BcryptHasher{}.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return BcryptHasher{}.ComparePasswordAndHash(password, hash)
}

// BcryptHasher implements PasswordAuthenticator with bcrypt. bcrypt embeds a
// random salt in every hash and compares in constant time.
type BcryptHasher struct {
	// Cost is the bcrypt work factor. Zero uses the build default.
	Cost int
}

var _ PasswordAuthenticator = BcryptHasher{}

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return passwordHashCost()
	}
	return b.Cost
}

func (b BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	return string(h), err
}

func (b BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrBadPassword
		}
		return err
	}
	return nil
}
