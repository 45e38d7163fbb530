package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCustomer  Role = "customer"
	RoleHR        Role = "hr"
	RoleJobSeeker Role = "job_seeker"
	RoleJobPoster Role = "job_poster"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleHR, RoleJobSeeker, RoleJobPoster:
		return true
	}
	return false
}

// SelfAssignable reports whether a role may be picked at self-registration.
func (r Role) SelfAssignable() bool {
	switch r {
	case RoleCustomer, RoleJobSeeker, RoleJobPoster:
		return true
	}
	return false
}

type User struct {
	ID            string         `gorm:"primaryKey;size:36"                               json:"id"`
	Name          string         `gorm:"not null"                                         json:"name"`
	Email         string         `gorm:"uniqueIndex;not null"                             json:"email"`
	Phone         string         `gorm:"not null"                                         json:"phone"`
	PasswordHash  string         `gorm:"not null"                                         json:"-"`
	Role          Role           `gorm:"not null;size:32"                                 json:"role"`
	IsActive      bool           `gorm:"not null"                                         json:"isActive"`
	FailedLogins  int            `gorm:"not null"                                         json:"-"`
	LockoutUntil  *time.Time     `json:"-"`
	LastLoginAt   *time.Time     `json:"lastLoginAt,omitempty"`
	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"    json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (u *User) LockedAt(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// RefreshToken is one active session. Only the sha256 digest of the token is
// kept; TokenID is the jti carried inside the JWT.
type RefreshToken struct {
	ID         uint      `gorm:"primaryKey"            json:"-"`
	UserID     string    `gorm:"index;not null;size:36" json:"-"`
	TokenID    string    `gorm:"uniqueIndex;not null"  json:"tokenId"`
	TokenHash  string    `gorm:"uniqueIndex;not null"  json:"-"`
	ExpiresAt  time.Time `gorm:"index;not null"        json:"expiresAt"`
	CreatedAt  time.Time `gorm:"not null"              json:"createdAt"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
}

type RateLimitEntry struct {
	ID           uint      `gorm:"primaryKey"`
	Identifier   string    `gorm:"index:idx_rate_limit_key;not null"`
	Endpoint     string    `gorm:"index:idx_rate_limit_key;not null"`
	RequestCount int       `gorm:"not null"`
	WindowStart  time.Time `gorm:"not null"`
	LastRequest  time.Time `gorm:"index;not null"`
}

// UserUpdate carries the optional fields of an admin profile update.
type UserUpdate struct {
	Name     *string
	Email    *string
	Phone    *string
	Role     *Role
	IsActive *bool
}

func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.Role == nil && u.IsActive == nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
