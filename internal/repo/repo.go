// Package repo is the credential store: user records, their login-failure
// state and the set of refresh tokens each user currently holds.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

type UserStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	ResetLoginFailures(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	// IncrementLoginFailures atomically bumps the counter and returns its new value.
	IncrementLoginFailures(ctx context.Context, id string) (int, error)
	LockUser(ctx context.Context, id string, until time.Time) error

	ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error)
	// AddRefreshToken also drops the user's tokens that expired before rt.CreatedAt.
	AddRefreshToken(ctx context.Context, userID string, rt models.RefreshToken) error
	// RotateRefreshToken replaces the unexpired token (oldTokenID, oldHash) with
	// next in one atomic step. Concurrent rotations of the same token succeed at
	// most once; the losers get ErrRefreshTokenNotFound.
	RotateRefreshToken(ctx context.Context, userID, oldTokenID, oldHash string, next models.RefreshToken, now time.Time) error
	RemoveRefreshToken(ctx context.Context, userID, tokenHash string) error
	ClearRefreshTokens(ctx context.Context, userID string) error
	// UpdatePassword stores the new hash and revokes every refresh token.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
