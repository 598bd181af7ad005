package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mpetrov/gatehouse/internal/domain"
)

type ResetTokenRepository struct {
	db *sqlx.DB
}

func NewResetTokenRepo(db *sqlx.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) (*domain.ResetToken, error) {
	const query = `
        INSERT INTO reset_token (token, user_id, expires_at)
        VALUES ($1, $2, $3)
        RETURNING token, user_id, expires_at, created_at
    `
	row := r.db.QueryRowxContext(ctx, query, token, userID, expiresAt)
	var reset domain.ResetToken
	if err := row.StructScan(&reset); err != nil {
		return nil, err
	}
	return &reset, nil
}

func (r *ResetTokenRepository) FindByToken(ctx context.Context, token string) (*domain.ResetToken, error) {
	const query = `
        SELECT token, user_id, expires_at, created_at
        FROM reset_token
        WHERE token = $1
    `
	var reset domain.ResetToken
	if err := r.db.GetContext(ctx, &reset, query, token); err != nil {
		return nil, err
	}
	return &reset, nil
}

func (r *ResetTokenRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	const query = `
        DELETE FROM reset_token
        WHERE user_id = $1
    `
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// Consume performs the password update and the single-use token deletion in
// one transaction. Deleting zero rows means the token was spent (or purged)
// since the caller looked it up; the transaction rolls back and the user's
// password is left untouched.
func (r *ResetTokenRepository) Consume(ctx context.Context, token string, userID uuid.UUID, passwordHash []byte) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const updateUser = `
        UPDATE user_account
        SET password_hash = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := tx.ExecContext(ctx, updateUser, userID, passwordHash); err != nil {
		return err
	}

	const deleteToken = `
        DELETE FROM reset_token
        WHERE token = $1
    `
	res, err := tx.ExecContext(ctx, deleteToken, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}
