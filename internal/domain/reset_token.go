package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResetToken is a single-use credential authorizing a password change for
// its owning user. The token value itself is the primary key.
type ResetToken struct {
	Token     string    `db:"token" json:"-"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
