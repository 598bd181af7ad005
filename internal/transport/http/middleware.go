package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mpetrov/gatehouse/internal/domain"
	"github.com/mpetrov/gatehouse/internal/service"
	"github.com/mpetrov/gatehouse/internal/util"
)

const contextUserKey = "auth.user"

func RequireAuth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if strings.TrimSpace(authHeader) == "" {
				return c.JSON(http.StatusUnauthorized, util.Error("missing authorization header"))
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return c.JSON(http.StatusUnauthorized, util.Error("invalid authorization header"))
			}
			token := strings.TrimSpace(parts[1])
			user, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, util.Error("unauthorized"))
			}
			c.Set(contextUserKey, user)
			return next(c)
		}
	}
}

func CurrentUser(c echo.Context) (*domain.User, bool) {
	user, ok := c.Get(contextUserKey).(*domain.User)
	return user, ok
}
