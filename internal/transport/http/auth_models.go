package http

import (
	"time"

	"github.com/mpetrov/gatehouse/internal/domain"
)

// ErrorResponse represents a generic error payload.
type ErrorResponse struct {
	Error string `json:"error" example:"invalid credentials"`
}

// AuthUser models the sanitized user representation returned by auth
// endpoints. It never carries the password hash.
type AuthUser struct {
	ID        string    `json:"id" example:"9fd13fd2-63c5-4f29-a210-4a1a8e285f74"`
	Email     string    `json:"email" example:"user@example.com"`
	Username  *string   `json:"username,omitempty" example:"alice"`
	CreatedAt time.Time `json:"created_at" example:"2024-01-01T12:00:00Z"`
	UpdatedAt time.Time `json:"updated_at" example:"2024-01-02T09:30:00Z"`
}

// AuthTokenResponse is returned by endpoints that issue session tokens.
type AuthTokenResponse struct {
	Message   string   `json:"message" example:"Login successful"`
	Token     string   `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	ExpiresAt string   `json:"expires_at" example:"2024-01-02T09:30:00Z"`
	User      AuthUser `json:"user"`
}

// MessageResponse carries a bare status message.
type MessageResponse struct {
	Message string `json:"message" example:"Password updated successfully"`
}

// RegisterRequest carries the registration fields.
type RegisterRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"secret1"`
}

// LoginRequest carries the login fields.
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"secret1"`
}

// GoogleLoginRequest carries the Google ID token for sign-in.
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" example:"eyJhbGciOiJSUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// ForgotPasswordRequest captures the payload for requesting a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email" example:"user@example.com"`
}

// ResetPasswordRequest captures the new password for a reset consumption.
type ResetPasswordRequest struct {
	Password string `json:"password" example:"newsecret1"`
}

func toAuthUser(u *domain.User) AuthUser {
	return AuthUser{
		ID:        u.ID.String(),
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
