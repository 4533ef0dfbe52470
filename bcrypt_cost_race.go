//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds are already slow, so hashing drops to the library default
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
