package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/api/idtoken"

	"github.com/mpetrov/gatehouse/internal/domain"
	"github.com/mpetrov/gatehouse/internal/repository/ports"
	"github.com/mpetrov/gatehouse/internal/util"
)

const pgUniqueViolation = "23505"

// PasswordResetSender dispatches the reset link out of band.
type PasswordResetSender interface {
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// AuthResult carries the authenticated user and the session token minted
// for them.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	users     ports.UserRepository
	resets    *ResetTokenManager
	hasher    *util.PasswordHasher
	tokens    *util.JWTManager
	mailer    PasswordResetSender
	googleAud string
	baseURL   string

	verifyGoogleToken func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewAuthService(users ports.UserRepository, resets *ResetTokenManager, hasher *util.PasswordHasher, tokens *util.JWTManager, mailer PasswordResetSender, googleAud, baseURL string) *AuthService {
	return &AuthService{
		users:             users,
		resets:            resets,
		hasher:            hasher,
		tokens:            tokens,
		mailer:            mailer,
		googleAud:         googleAud,
		baseURL:           strings.TrimRight(baseURL, "/"),
		verifyGoogleToken: idtoken.Validate,
	}
}

// Register creates a user and issues a session token. Email and username
// collisions both map to ErrUserExists, whether caught by the pre-check or
// by the storage uniqueness constraint closing the race window.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	existing, err := s.users.FindByEmailOrUsername(ctx, email, username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, email, username, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return s.issueSession(user)
}

// Login authenticates by username and password. Unknown username and wrong
// password return the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(user)
}

// ForgotPassword issues a reset token and mails the reset link when the
// email matches a user, and does nothing otherwise. Callers observe the
// same outcome either way. A mail dispatch failure is logged but does not
// roll back the issued token.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	reset, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/api/reset-password?token=%s", s.baseURL, reset.Token)
	if s.mailer == nil {
		log.Printf("password reset mailer not configured, token issued for user %s", user.ID)
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
		log.Printf("password reset mail for user %s failed: %v", user.ID, err)
	}
	return nil
}

// ResetPassword spends a reset token against a new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.resets.Consume(ctx, token, newPassword)
}

// LoginWithGoogle verifies a Google ID token, provisions the user by email
// if needed, and issues a session token.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idTok string) (*AuthResult, error) {
	payload, err := s.verifyGoogleToken(ctx, idTok, s.googleAud)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, ErrInvalidGoogleToken
	}
	user, err := s.users.UpsertGoogleUser(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.issueSession(user)
}

// Authenticate resolves a bearer session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issueSession(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
