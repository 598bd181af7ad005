package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mpetrov/gatehouse/internal/service"
	"github.com/mpetrov/gatehouse/internal/util"
	"github.com/mpetrov/gatehouse/internal/validation"
)

const (
	msgResetLinkSent   = "If the email exists, a reset link has been sent"
	msgInvalidBody     = "invalid request body"
	msgInternalError   = "internal server error"
	msgPasswordUpdated = "Password updated successfully"
	msgLoginSuccessful = "Login successful"
	msgRegistered      = "Registered"
)

type AuthHandler struct {
	svc *service.AuthService
}

func RegisterAuth(e *echo.Echo, svc *service.AuthService) {
	h := &AuthHandler{svc: svc}
	api := e.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/google", h.GoogleLogin)
	api.POST("/forgot-password", h.ForgotPassword)
	api.POST("/reset-password", h.ResetPassword)
	api.GET("/me", h.Me, RequireAuth(svc))
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidBody))
	}
	if err := validation.ValidateRegistration(validation.RegistrationInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	}); err != nil {
		return validationFailure(c, err)
	}

	result, err := h.svc.Register(c.Request().Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			return c.JSON(http.StatusConflict, util.Error("user already exists"))
		}
		return internalError(c, err)
	}

	return c.JSON(http.StatusCreated, AuthTokenResponse{
		Message:   msgRegistered,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toAuthUser(result.User),
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidBody))
	}
	if err := validation.ValidateLogin(validation.LoginInput{
		Username: req.Username,
		Password: req.Password,
	}); err != nil {
		return validationFailure(c, err)
	}

	result, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, util.Error("invalid credentials"))
		}
		return internalError(c, err)
	}

	return c.JSON(http.StatusOK, AuthTokenResponse{
		Message:   msgLoginSuccessful,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toAuthUser(result.User),
	})
}

func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	var req GoogleLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidBody))
	}
	result, err := h.svc.LoginWithGoogle(c.Request().Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGoogleToken) {
			return c.JSON(http.StatusUnauthorized, util.Error("invalid google token"))
		}
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, AuthTokenResponse{
		Message:   msgLoginSuccessful,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toAuthUser(result.User),
	})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidBody))
	}
	if err := validation.ValidateForgotPassword(validation.ForgotPasswordInput{Email: req.Email}); err != nil {
		return validationFailure(c, err)
	}

	if err := h.svc.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return internalError(c, err)
	}

	// Identical body whether or not the email matched a user.
	return c.JSON(http.StatusOK, MessageResponse{Message: msgResetLinkSent})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, util.Error(msgInvalidBody))
	}
	token := c.QueryParam("token")
	if err := validation.ValidateResetPassword(validation.ResetPasswordInput{
		Token:    token,
		Password: req.Password,
	}); err != nil {
		return validationFailure(c, err)
	}

	if err := h.svc.ResetPassword(c.Request().Context(), token, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			return c.JSON(http.StatusBadRequest, util.Error("invalid or expired token"))
		case errors.Is(err, service.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, util.Error("user not found"))
		default:
			return internalError(c, err)
		}
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: msgPasswordUpdated})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, util.Error("authentication required"))
	}
	return c.JSON(http.StatusOK, util.Data("user", toAuthUser(user)))
}

func validationFailure(c echo.Context, err error) error {
	var verrs *validation.Errors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusBadRequest, verrs)
	}
	return c.JSON(http.StatusBadRequest, util.Error(err.Error()))
}

func internalError(c echo.Context, err error) error {
	c.Logger().Errorf("auth: %v", err)
	return c.JSON(http.StatusInternalServerError, util.Error(msgInternalError))
}
