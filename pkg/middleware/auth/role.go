package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
)

var ErrForbidden = apperr.New(apperr.PermissionDenied, "insufficient permissions")

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c)
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return ErrForbidden
		}
	}
}
