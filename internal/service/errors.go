package service

import "errors"

var (
	// ErrUserExists is returned when a registration collides with an
	// existing email or username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers both unknown username and wrong
	// password so login failures cannot be told apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOrExpiredToken covers both missing and expired reset
	// tokens so callers cannot probe which tokens ever existed.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrUserNotFound means a reset token points at a user record that no
	// longer exists. Reachable only with a valid token in hand.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidGoogleToken is returned when a Google ID token fails
	// verification.
	ErrInvalidGoogleToken = errors.New("invalid google token")
	// ErrUnauthorized is returned by bearer-token authentication.
	ErrUnauthorized = errors.New("unauthorized")
)
