package service

import (
	"context"
	"errors"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/internal/repo"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/hash"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

const (
	MaxLoginAttempts = 5
	LockoutDuration  = 15 * time.Minute
)

type PasswordVerifier struct {
	Repo   repo.UserStore
	Hasher *hash.Hasher
	Now    func() time.Time
	// OnLocked runs after an account has been locked.
	OnLocked func(ctx context.Context, u *models.User, until time.Time)
}

func (v *PasswordVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// Verify checks a login attempt. It returns the user on success,
// ErrInvalidCredentials when the email or password is wrong, and
// ErrAccountLocked / ErrAccountDeactivated when the account may not sign in.
func (v *PasswordVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_password")

	u, err := v.Repo.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			// same bcrypt cost as a real check so response time does not reveal the account
			if err := v.Hasher.CheckDummy(ctx, password); err != nil {
				l.Error("password_check_failed", "error", err)
			}
			return nil, ErrInvalidCredentials
		}
		l.Error("password_check_failed", "reason", "cannot load user", "error", err)
		return nil, apperr.InternalError(err)
	}

	if err := v.check(ctx, u, password); err != nil {
		return nil, err
	}

	now := v.now()
	if err := v.Repo.RecordLogin(ctx, u.ID, now); err != nil {
		l.Error("password_check_failed", "reason", "cannot record login", "error", err)
		return nil, apperr.InternalError(err)
	}
	u.FailedLogins = 0
	u.LockoutUntil = nil
	u.LastLoginAt = &now
	return u, nil
}

// VerifyCurrent re-checks the password of an already authenticated user.
// Failures count towards the lockout like login failures do.
func (v *PasswordVerifier) VerifyCurrent(ctx context.Context, u *models.User, password string) error {
	if err := v.check(ctx, u, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrWrongPassword
		}
		return err
	}
	if u.FailedLogins > 0 {
		if err := v.Repo.ResetLoginFailures(ctx, u.ID); err != nil {
			return apperr.InternalError(err)
		}
		u.FailedLogins = 0
	}
	return nil
}

func (v *PasswordVerifier) check(ctx context.Context, u *models.User, password string) error {
	l := logging.FromContext(ctx).With("svc", "auth.verify_password", "user_id", u.ID)
	now := v.now()

	if u.LockedAt(now) {
		l.Warn("login_rejected", "reason", "account locked", "lockout_until", u.LockoutUntil)
		return ErrAccountLocked
	}
	if !u.IsActive {
		l.Warn("login_rejected", "reason", "account deactivated")
		return ErrAccountDeactivated
	}

	if u.LockoutUntil != nil {
		// the lock has run out: start counting from zero again
		if err := v.Repo.ResetLoginFailures(ctx, u.ID); err != nil {
			l.Error("password_check_failed", "reason", "cannot reset failures", "error", err)
			return apperr.InternalError(err)
		}
		u.FailedLogins = 0
		u.LockoutUntil = nil
	}

	ok, err := v.Hasher.CheckPassword(ctx, u.PasswordHash, password)
	if err != nil {
		return apperr.InternalError(err)
	}
	if ok {
		return nil
	}

	attempts, err := v.Repo.IncrementLoginFailures(ctx, u.ID)
	if err != nil {
		l.Error("password_check_failed", "reason", "cannot count failure", "error", err)
		return apperr.InternalError(err)
	}
	u.FailedLogins = attempts

	if attempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		if err := v.Repo.LockUser(ctx, u.ID, until); err != nil {
			l.Error("password_check_failed", "reason", "cannot lock account", "error", err)
			return apperr.InternalError(err)
		}
		u.LockoutUntil = &until
		l.Warn("account_locked", "attempts", attempts, "lockout_until", until)
		if v.OnLocked != nil {
			v.OnLocked(ctx, u, until)
		}
	}
	return ErrInvalidCredentials
}
