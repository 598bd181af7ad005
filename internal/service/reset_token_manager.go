package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/gatehouse/internal/domain"
	"github.com/mpetrov/gatehouse/internal/repository/ports"
	"github.com/mpetrov/gatehouse/internal/util"
)

const resetTokenBytes = 32

// ResetTokenManager mints single-use password reset tokens and consumes
// them exactly once.
type ResetTokenManager struct {
	resets ports.ResetTokenRepository
	users  ports.UserRepository
	hasher *util.PasswordHasher
	ttl    time.Duration

	now func() time.Time
}

func NewResetTokenManager(resets ports.ResetTokenRepository, users ports.UserRepository, hasher *util.PasswordHasher, ttl time.Duration) *ResetTokenManager {
	return &ResetTokenManager{
		resets: resets,
		users:  users,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue persists a fresh 256-bit token for the user. Any previously issued
// tokens for the same user are invalidated first, so at most one token is
// outstanding at a time.
func (m *ResetTokenManager) Issue(ctx context.Context, userID uuid.UUID) (*domain.ResetToken, error) {
	token, err := generateResetToken()
	if err != nil {
		return nil, err
	}
	if err := m.resets.DeleteByUser(ctx, userID); err != nil {
		return nil, err
	}
	return m.resets.Create(ctx, token, userID, m.now().Add(m.ttl))
}

// Consume validates the token, rehashes the password, and spends the token.
// Missing and expired tokens are deliberately indistinguishable.
func (m *ResetTokenManager) Consume(ctx context.Context, token, newPassword string) error {
	reset, err := m.resets.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	if !reset.ExpiresAt.After(m.now()) {
		return ErrInvalidOrExpiredToken
	}

	user, err := m.users.FindByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// Password update and token deletion run as one transaction; losing
	// the race to another consumer surfaces as the token being gone.
	if err := m.resets.Consume(ctx, reset.Token, user.ID, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	return nil
}

func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
