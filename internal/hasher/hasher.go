// Package hasher hashes and verifies user passwords.
package hasher

import "golang.org/x/crypto/bcrypt"

// BcryptHasher stores salted bcrypt hashes. Compare runs in constant time
// with respect to the password.
type BcryptHasher struct {
	cost int
}

func New(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare returns nil when password matches hash.
func (h *BcryptHasher) Compare(hash string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
