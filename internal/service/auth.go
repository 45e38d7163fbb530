package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/events"
	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/internal/notify"
	"github.com/Skotchmaster/foodpoint_auth/internal/repo"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/hash"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
	"github.com/Skotchmaster/foodpoint_auth/pkg/tokens"
)

// ClientMeta describes the device a session was opened from.
type ClientMeta struct {
	DeviceInfo string
	IPAddress  string
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     models.Role
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         *models.User
}

type AuthService struct {
	Repo      repo.UserStore
	Tokens    *tokens.Issuer
	Hasher    *hash.Hasher
	Passwords *PasswordVerifier
	Events    events.Publisher
	Notifier  notify.Notifier
	Now       func() time.Time
}

func NewAuthService(store repo.UserStore, issuer *tokens.Issuer, hasher *hash.Hasher, pub events.Publisher, n notify.Notifier) *AuthService {
	s := &AuthService{
		Repo:     store,
		Tokens:   issuer,
		Hasher:   hasher,
		Events:   pub,
		Notifier: n,
	}
	s.Passwords = &PasswordVerifier{
		Repo:     store,
		Hasher:   hasher,
		Now:      s.now,
		OnLocked: s.accountLocked,
	}
	return s
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email := models.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}

	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	if err := validateNewPassword(in.Password); err != nil {
		return nil, err
	}
	if !role.SelfAssignable() {
		return nil, invalidArgument("role " + string(role) + " cannot be chosen at registration")
	}

	// fast path only; the unique index decides under concurrency
	if _, err := s.Repo.GetUserByEmail(ctx, email); err == nil {
		l.Warn("register_error", "status", 409, "reason", "user already exist")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrUserNotFound) {
		l.Error("register_error", "status", 500, "reason", "cannot check email", "error", err)
		return nil, apperr.InternalError(err)
	}

	pwHash, err := s.Hasher.HashPassword(ctx, in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, apperr.InternalError(err)
	}

	u := &models.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: pwHash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, ErrEmailTaken
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, apperr.InternalError(err)
	}

	res, err := s.issueSession(ctx, u, meta)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	l.Info("register_successful", "user_id", u.ID, "role", u.Role)
	s.publish(ctx, events.TypeUserRegistered, u, nil)
	return res, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalidArgument("email and password are required")
	}

	u, err := s.Passwords.Verify(ctx, email, password)
	if err != nil {
		l.Warn("login_failed", "status", apperr.CodeOf(err).HTTPStatus(), "reason", apperr.CodeOf(err))
		return nil, err
	}

	res, err := s.issueSession(ctx, u, meta)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	l.Info("login_successful", "user_id", u.ID)
	s.publish(ctx, events.TypeUserLoggedIn, u, map[string]string{"ipAddress": meta.IPAddress})
	return res, nil
}

// issueSession mints an access/refresh pair and persists the refresh entry
// before anything is handed back to the caller.
func (s *AuthService) issueSession(ctx context.Context, u *models.User, meta ClientMeta) (*AuthResult, error) {
	accessToken, accessExp, err := s.Tokens.IssueAccessToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, apperr.InternalError(err)
	}

	entry, refreshToken, err := s.newRefreshEntry(u.ID, meta)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.AddRefreshToken(ctx, u.ID, entry); err != nil {
		return nil, apperr.InternalError(err)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   entry.ExpiresAt,
		User:         u,
	}, nil
}

func (s *AuthService) newRefreshEntry(userID string, meta ClientMeta) (models.RefreshToken, string, error) {
	tokenID, err := tokens.NewTokenID()
	if err != nil {
		return models.RefreshToken{}, "", apperr.InternalError(err)
	}
	refreshToken, refreshExp, err := s.Tokens.IssueRefreshToken(userID, tokenID)
	if err != nil {
		return models.RefreshToken{}, "", apperr.InternalError(err)
	}
	return models.RefreshToken{
		TokenID:    tokenID,
		TokenHash:  tokens.HashToken(refreshToken),
		ExpiresAt:  refreshExp.UTC(),
		CreatedAt:  s.now(),
		DeviceInfo: meta.DeviceInfo,
		IPAddress:  meta.IPAddress,
	}, refreshToken, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed: a second exchange of the same token fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		return nil, invalidArgument("refresh token is required")
	}

	claims, err := s.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "token rejected")
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.Repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "user not found")
			return nil, ErrInvalidRefreshToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, apperr.InternalError(err)
	}
	if !u.IsActive {
		l.Warn("refresh_failed", "status", 401, "reason", "account deactivated", "user_id", u.ID)
		return nil, ErrInvalidRefreshToken
	}

	next, nextToken, err := s.newRefreshEntry(u.ID, meta)
	if err != nil {
		return nil, err
	}

	err = s.Repo.RotateRefreshToken(ctx, u.ID, claims.TokenID, tokens.HashToken(refreshToken), next, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrRefreshTokenNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "token not active", "user_id", u.ID)
			return nil, ErrInvalidRefreshToken
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, apperr.InternalError(err)
	}

	accessToken, accessExp, err := s.Tokens.IssueAccessToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, apperr.InternalError(err)
	}

	l.Info("refresh_successful", "user_id", u.ID)
	s.publish(ctx, events.TypeTokenRefreshed, u, nil)
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: nextToken,
		AccessExp:    accessExp,
		RefreshExp:   next.ExpiresAt,
		User:         u,
	}, nil
}

// LogOut revokes one refresh token of the user, or all of them. Unknown
// tokens are ignored so the call can be repeated.
func (s *AuthService) LogOut(ctx context.Context, userID, refreshToken string, allDevices bool) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	var err error
	switch {
	case allDevices:
		err = s.Repo.ClearRefreshTokens(ctx, userID)
	case refreshToken != "":
		err = s.Repo.RemoveRefreshToken(ctx, userID, tokens.HashToken(refreshToken))
	default:
		return nil
	}
	if err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", err)
		return apperr.InternalError(err)
	}

	l.Info("successful_logout", "all_devices", allDevices)
	s.publish(ctx, events.TypeUserLoggedOut, &models.User{ID: userID}, nil)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logging.FromContext(ctx).Error("me_failed", "status", 500, "error", err)
		return nil, apperr.InternalError(err)
	}
	return u, nil
}

// Sessions lists the unexpired refresh tokens of the user.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	all, err := s.Repo.ListRefreshTokens(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.InternalError(err)
	}
	now := s.now()
	active := make([]models.RefreshToken, 0, len(all))
	for _, rt := range all {
		if rt.ExpiresAt.After(now) {
			active = append(active, rt)
		}
	}
	return active, nil
}

// ChangePassword replaces the password and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "user_id", userID)

	if current == "" || next == "" {
		return invalidArgument("current password and new password are required")
	}
	if err := validateNewPassword(next); err != nil {
		return err
	}
	if current == next {
		return invalidArgument("new password must differ from the current password")
	}

	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.Passwords.VerifyCurrent(ctx, u, current); err != nil {
		l.Warn("change_password_failed", "status", apperr.CodeOf(err).HTTPStatus(), "reason", apperr.CodeOf(err))
		return err
	}

	pwHash, err := s.Hasher.HashPassword(ctx, next)
	if err != nil {
		l.Error("change_password_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return apperr.InternalError(err)
	}
	if err := s.Repo.UpdatePassword(ctx, userID, pwHash); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		l.Error("change_password_failed", "status", 500, "error", err)
		return apperr.InternalError(err)
	}

	l.Info("password_changed")
	s.publish(ctx, events.TypePasswordChanged, u, nil)
	s.notify(ctx, func(ctx context.Context, n notify.Notifier) error {
		return n.PasswordChanged(ctx, u.Email, u.Name, s.now())
	})
	return nil
}

func (s *AuthService) accountLocked(ctx context.Context, u *models.User, until time.Time) {
	s.publish(ctx, events.TypeAccountLocked, u, map[string]string{"lockoutUntil": until.Format(time.RFC3339)})
	s.notify(ctx, func(ctx context.Context, n notify.Notifier) error {
		return n.AccountLocked(ctx, u.Email, u.Name, until)
	})
}

func (s *AuthService) publish(ctx context.Context, typ string, u *models.User, meta map[string]string) {
	if s.Events == nil {
		return
	}
	err := s.Events.Publish(ctx, events.Event{
		Type:       typ,
		UserID:     u.ID,
		Email:      u.Email,
		Role:       string(u.Role),
		OccurredAt: s.now(),
		Meta:       meta,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "error", err)
	}
}

// notify sends mail in the background; the request does not wait for it.
func (s *AuthService) notify(ctx context.Context, send func(context.Context, notify.Notifier) error) {
	if s.Notifier == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if err := send(ctx, s.Notifier); err != nil {
			logging.FromContext(ctx).Warn("notification_failed", "error", err)
		}
	}()
}
