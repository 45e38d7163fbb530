package transport

import (
	"strings"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

type RegisterRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"omitempty,len=10,numeric"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Role       string `json:"role" validate:"omitempty,oneof=customer job_seeker job_poster"`
	DeviceInfo string `json:"deviceInfo" validate:"max=255"`
}

// Normalize trims the email so surrounding whitespace does not fail the
// format check; case folding happens in the service.
func (r *RegisterRequest) Normalize() { r.Email = strings.TrimSpace(r.Email) }

type LoginRequest struct {
	Email      string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required"`
	DeviceInfo string `json:"deviceInfo" validate:"max=255"`
}

func (r *LoginRequest) Normalize() { r.Email = strings.TrimSpace(r.Email) }

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AllDevices   bool   `json:"allDevices"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,len=10,numeric"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=admin customer hr job_seeker job_poster"`
}

func (r *CreateUserRequest) Normalize() { r.Email = strings.TrimSpace(r.Email) }

// UpdateUserRequest leaves absent fields untouched.
type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,len=10,numeric"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin customer hr job_seeker job_poster"`
	IsActive *bool   `json:"isActive"`
}

func (r *UpdateUserRequest) Normalize() {
	if r.Email != nil {
		email := strings.TrimSpace(*r.Email)
		r.Email = &email
	}
}

func (r UpdateUserRequest) Update() models.UserUpdate {
	upd := models.UserUpdate{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		IsActive: r.IsActive,
	}
	if r.Role != nil {
		role := models.Role(*r.Role)
		upd.Role = &role
	}
	return upd
}

type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         SessionUser `json:"user"`
	ExpiresIn    string      `json:"expiresIn"`
	Message      string      `json:"message"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type UserResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Role        string     `json:"role,omitempty"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type MeResponse struct {
	User UserResponse `json:"user"`
}

type Session struct {
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type SessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type UsersPageResponse struct {
	Users      []UserResponse `json:"users"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalPages int            `json:"totalPages"`
}

type CreateUserResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewSessionUser(u *models.User) SessionUser {
	return SessionUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
	}
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func NewSessions(tokens []models.RefreshToken) SessionsResponse {
	out := SessionsResponse{Sessions: make([]Session, 0, len(tokens))}
	for _, rt := range tokens {
		out.Sessions = append(out.Sessions, Session{
			DeviceInfo: rt.DeviceInfo,
			IPAddress:  rt.IPAddress,
			CreatedAt:  rt.CreatedAt,
			ExpiresAt:  rt.ExpiresAt,
		})
	}
	return out
}

// FormatTTL renders a lifetime the way clients expect it, e.g. "48h" or "15m".
func FormatTTL(d time.Duration) string {
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}
