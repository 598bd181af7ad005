package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/gatehouse/internal/domain"
)

type ResetTokenRepository interface {
	Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) (*domain.ResetToken, error)
	FindByToken(ctx context.Context, token string) (*domain.ResetToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	// Consume updates the owning user's password hash and deletes the token
	// in one transaction. It returns sql.ErrNoRows when the token row is
	// already gone, so a token can never be spent twice.
	Consume(ctx context.Context, token string, userID uuid.UUID, passwordHash []byte) error
}
