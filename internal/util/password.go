package util

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher derives and verifies bcrypt digests. The cost is the
// tunable work factor; bcrypt encodes it into the digest itself.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	return bcrypt.GenerateFromPassword([]byte(password), h.cost)
}

// Verify reports whether password matches the stored digest. The underlying
// comparison is constant-time.
func (h *PasswordHasher) Verify(password string, digest []byte) bool {
	if len(password) == 0 || len(digest) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(digest, []byte(password)) == nil
}
