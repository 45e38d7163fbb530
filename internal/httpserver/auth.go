package httpserver

import (
	"net/http"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/internal/service"
	"github.com/Skotchmaster/foodpoint_auth/internal/transport"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
	authmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/auth"
)

var errInvalidBody = apperr.New(apperr.InvalidArgument, "invalid body")

type AuthHTTP struct {
	Svc *service.AuthService
}

const maxDeviceInfo = 255

type normalizer interface {
	Normalize()
}

// bind decodes, normalizes and validates the request body.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errInvalidBody
	}
	if n, ok := req.(normalizer); ok {
		n.Normalize()
	}
	return c.Validate(req)
}

func clientMeta(c echo.Context, deviceInfo string) service.ClientMeta {
	if deviceInfo == "" {
		deviceInfo = c.Request().UserAgent()
	}
	return service.ClientMeta{DeviceInfo: truncate(deviceInfo, maxDeviceInfo), IPAddress: c.RealIP()}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (h *AuthHTTP) expiresIn() string {
	return transport.FormatTTL(h.Svc.Tokens.AccessTTL())
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := bind(c, &req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return err
	}

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     models.Role(req.Role),
	}, clientMeta(c, req.DeviceInfo))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, transport.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         transport.NewSessionUser(res.User),
		ExpiresIn:    h.expiresIn(),
		Message:      "Registration successful",
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := bind(c, &req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return err
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password, clientMeta(c, req.DeviceInfo))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, transport.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         transport.NewSessionUser(res.User),
		ExpiresIn:    h.expiresIn(),
		Message:      "Login successful",
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := bind(c, &req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return err
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken, clientMeta(c, ""))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, transport.RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    h.expiresIn(),
	})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req transport.LogoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("logout_error", "status", 400, "error", err)
		return errInvalidBody
	}

	if err := h.Svc.LogOut(ctx, authmw.UserID(c), req.RefreshToken, req.AllDevices); err != nil {
		return err
	}

	msg := "Logged out successfully"
	if req.AllDevices {
		msg = "Logged out from all devices successfully"
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: msg})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	u, err := h.Svc.Me(c.Request().Context(), authmw.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MeResponse{User: transport.NewUserResponse(u)})
}

func (h *AuthHTTP) Sessions(c echo.Context) error {
	sessions, err := h.Svc.Sessions(c.Request().Context(), authmw.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.NewSessions(sessions))
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	var req transport.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		l.Warn("change_password_error", "status", 400, "error", err)
		return err
	}

	if err := h.Svc.ChangePassword(ctx, authmw.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{
		Message: "Password changed successfully. Please log in again on all devices.",
	})
}
