package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/mpetrov/gatehouse/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error)
	UpsertGoogleUser(ctx context.Context, email string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}
