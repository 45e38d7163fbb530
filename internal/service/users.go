package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Skotchmaster/foodpoint_auth/internal/events"
	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/internal/repo"
	"github.com/Skotchmaster/foodpoint_auth/internal/util"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/hash"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

// UsersService is the administrative view of the credential store.
type UsersService struct {
	Repo   repo.UserStore
	Hasher *hash.Hasher
	Events events.Publisher
}

type UserPage struct {
	Users      []models.User
	Total      int64
	Page       int
	Size       int
	TotalPages int
}

type CreateUserInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     models.Role
}

func mapStoreError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, repo.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repo.ErrEmailTaken):
		return ErrEmailTaken
	default:
		logging.FromContext(ctx).Error(op+"_failed", "status", 500, "error", err)
		return apperr.InternalError(err)
	}
}

func (s *UsersService) List(ctx context.Context, page, size int) (*UserPage, error) {
	from, limit := util.Calculate(page, size)
	users, total, err := s.Repo.ListUsers(ctx, from, limit)
	if err != nil {
		return nil, mapStoreError(ctx, "list_users", err)
	}
	if page < 1 {
		page = 1
	}
	return &UserPage{
		Users:      users,
		Total:      total,
		Page:       page,
		Size:       limit,
		TotalPages: util.TotalPages(total, limit),
	}, nil
}

func (s *UsersService) Get(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidArgument("user id is required")
	}
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(ctx, "get_user", err)
	}
	return u, nil
}

func (s *UsersService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	u, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, mapStoreError(ctx, "get_user", err)
	}
	return u, nil
}

// Create provisions an account on behalf of an administrator; any role may be
// assigned here.
func (s *UsersService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.create")

	email := models.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}

	for _, err := range []error{
		validateName(name),
		validateEmail(email),
		validatePhone(phone),
		validateNewPassword(in.Password),
		validateRole(role),
	} {
		if err != nil {
			return nil, err
		}
	}

	pwHash, err := s.Hasher.HashPassword(ctx, in.Password)
	if err != nil {
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
		return nil, mapStoreError(ctx, "create_user", err)
	}

	l.Info("user_created", "user_id", u.ID, "role", u.Role)
	s.publish(ctx, events.TypeUserRegistered, u)
	return u, nil
}

// Update applies the given fields. Deactivating a user or changing the role
// revokes the user's refresh tokens.
func (s *UsersService) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.update", "user_id", id)

	if upd.Empty() {
		return nil, invalidArgument("no fields to update")
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		upd.Name = &name
	}
	if upd.Email != nil {
		email := models.NormalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if upd.Phone != nil {
		phone := strings.TrimSpace(*upd.Phone)
		if err := validatePhone(phone); err != nil {
			return nil, err
		}
		upd.Phone = &phone
	}
	if upd.Role != nil {
		if err := validateRole(*upd.Role); err != nil {
			return nil, err
		}
	}

	u, err := s.Repo.UpdateUser(ctx, id, upd)
	if err != nil {
		return nil, mapStoreError(ctx, "update_user", err)
	}

	if (upd.IsActive != nil && !*upd.IsActive) || upd.Role != nil {
		if err := s.Repo.ClearRefreshTokens(ctx, id); err != nil {
			return nil, mapStoreError(ctx, "update_user", err)
		}
		l.Info("sessions_revoked")
	}

	l.Info("user_updated")
	s.publish(ctx, events.TypeUserUpdated, u)
	return u, nil
}

func (s *UsersService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidArgument("user id is required")
	}
	if err := s.Repo.DeleteUser(ctx, id); err != nil {
		return mapStoreError(ctx, "delete_user", err)
	}
	logging.FromContext(ctx).Info("user_deleted", "user_id", id)
	s.publish(ctx, events.TypeUserDeleted, &models.User{ID: id})
	return nil
}

func (s *UsersService) publish(ctx context.Context, typ string, u *models.User) {
	if s.Events == nil {
		return
	}
	err := s.Events.Publish(ctx, events.Event{
		Type:   typ,
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "error", err)
	}
}
