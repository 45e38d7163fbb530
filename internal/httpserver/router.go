package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/internal/ratelimit"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
	authmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/auth"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	AuthHandler  *AuthHTTP
	UsersHandler *UsersHTTP
	Auth         *authmw.BearerAuth
	// Limiter may be nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	Store   Pinger
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			logging.FromContext(ctx).Warn("readiness_failed", "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	lim := d.Limiter
	auth := e.Group("/auth")

	auth.POST("/register", d.AuthHandler.Register, lim.Middleware(ratelimit.EndpointRegister, ratelimit.RegisterRule))
	auth.POST("/login", d.AuthHandler.Login, lim.Middleware(ratelimit.EndpointLogin, ratelimit.LoginRule))
	auth.POST("/refresh", d.AuthHandler.Refresh, lim.Middleware(ratelimit.EndpointRefresh, ratelimit.RefreshRule))

	private := auth.Group("", d.Auth.RequireAuth, lim.Middleware(ratelimit.EndpointDefault, ratelimit.DefaultRule))

	private.POST("/logout", d.AuthHandler.LogOut)
	private.GET("/me", d.AuthHandler.Me)
	private.GET("/sessions", d.AuthHandler.Sessions)
	private.POST("/change-password", d.AuthHandler.ChangePassword)

	users := e.Group("/users",
		d.Auth.RequireAuth,
		authmw.RequireRole("admin"),
		lim.Middleware(ratelimit.EndpointDefault, ratelimit.DefaultRule),
	)

	users.GET("", d.UsersHandler.List)
	users.POST("", d.UsersHandler.Create)
	users.GET("/by-email/:email", d.UsersHandler.GetByEmail)
	users.GET("/:id", d.UsersHandler.Get)
	users.PUT("/:id", d.UsersHandler.Update)
	users.DELETE("/:id", d.UsersHandler.Delete)
}
