package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
	"github.com/Skotchmaster/foodpoint_auth/pkg/tokens"
)

// Keys under which the authenticated principal is stored on echo.Context.
const (
	UserIDKey = "user_id"
	EmailKey  = "email"
	RoleKey   = "role"
)

var (
	ErrMissingHeader   = apperr.New(apperr.Unauthenticated, "missing authorization header")
	ErrMalformedHeader = apperr.New(apperr.Unauthenticated, "invalid authorization header format, expected: Bearer <token>")
	ErrInvalidToken    = apperr.New(apperr.Unauthenticated, "invalid or expired token")
)

type AccessVerifier interface {
	VerifyAccessToken(token string) (*tokens.AccessClaims, error)
}

type BearerAuth struct {
	Verifier AccessVerifier
}

func NewBearerAuth(v AccessVerifier) *BearerAuth {
	return &BearerAuth{Verifier: v}
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>" value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

func (m *BearerAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := ParseBearer(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return err
		}

		claims, err := m.Verifier.VerifyAccessToken(token)
		if err != nil || claims == nil {
			return ErrInvalidToken
		}

		setUserContext(c, claims)
		return next(c)
	}
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(EmailKey, claims.Email)
	c.Set(RoleKey, claims.Role)

	req := c.Request()
	l := logging.FromContext(req.Context()).With("user_id", claims.UserID)
	c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))
}

func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}

func Role(c echo.Context) string {
	role, _ := c.Get(RoleKey).(string)
	return role
}
