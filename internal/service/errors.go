package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
)

var (
	ErrInvalidCredentials  = apperr.New(apperr.Unauthenticated, "invalid email or password")
	ErrAccountLocked       = apperr.New(apperr.PermissionDenied, "account is temporarily locked due to too many failed login attempts")
	ErrAccountDeactivated  = apperr.New(apperr.PermissionDenied, "account is deactivated")
	ErrEmailTaken          = apperr.New(apperr.AlreadyExists, "user with this email already exists")
	ErrInvalidRefreshToken = apperr.New(apperr.Unauthenticated, "invalid or expired refresh token")
	ErrUserNotFound        = apperr.New(apperr.NotFound, "user not found")
	ErrWrongPassword       = apperr.New(apperr.Unauthenticated, "current password is incorrect")
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLen = 72
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[0-9]{10}$`)
)

func invalidArgument(msg string) error {
	return apperr.New(apperr.InvalidArgument, msg)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidArgument("name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return invalidArgument("name must be at most 100 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return invalidArgument("email is required")
	}
	if !emailRe.MatchString(email) {
		return invalidArgument("invalid email format")
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !phoneRe.MatchString(phone) {
		return invalidArgument("phone number must be exactly 10 digits")
	}
	return nil
}

func validateNewPassword(password string) error {
	if len(password) < minPasswordLen {
		return invalidArgument("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLen {
		return invalidArgument("password must be at most 72 bytes")
	}
	return nil
}

func validateRole(role models.Role) error {
	if !role.Valid() {
		return invalidArgument("unknown role " + string(role))
	}
	return nil
}
