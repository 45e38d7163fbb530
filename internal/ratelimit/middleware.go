package ratelimit

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/auth"
)

// Middleware applies rule to every request of the route group. A nil limiter
// lets everything through.
func (l *Limiter) Middleware(endpoint string, rule Rule) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}

			id := ClientIdentifier(c.Request(), authmw.UserID(c))
			if err := l.Allow(c.Request().Context(), id, endpoint, rule); err != nil {
				var exceeded *ExceededError
				if errors.As(err, &exceeded) {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(exceeded.RetryAfter.Seconds())))
				}
				return err
			}
			return next(c)
		}
	}
}
