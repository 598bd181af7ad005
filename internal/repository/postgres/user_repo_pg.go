package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mpetrov/gatehouse/internal/domain"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, email, username string, passwordHash []byte) (*domain.User, error) {
	const query = `
        INSERT INTO user_account (email, username, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, email, username, password_hash, created_at, updated_at
    `
	row := r.db.QueryRowxContext(ctx, query, email, username, passwordHash)
	var user domain.User
	if err := row.StructScan(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpsertGoogleUser(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        INSERT INTO user_account (email)
        VALUES ($1)
        ON CONFLICT (email) DO UPDATE
        SET updated_at = NOW()
        RETURNING id, email, username, password_hash, created_at, updated_at
    `
	row := r.db.QueryRowxContext(ctx, query, email)
	var user domain.User
	if err := row.StructScan(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, username, password_hash, created_at, updated_at
        FROM user_account
        WHERE email = $1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `
        SELECT id, email, username, password_hash, created_at, updated_at
        FROM user_account
        WHERE username = $1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	const query = `
        SELECT id, email, username, password_hash, created_at, updated_at
        FROM user_account
        WHERE email = $1 OR username = $2
        LIMIT 1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, email, username); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const query = `
        SELECT id, email, username, password_hash, created_at, updated_at
        FROM user_account
        WHERE id = $1
    `
	var user domain.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}
