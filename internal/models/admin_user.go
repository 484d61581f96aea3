package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser represents an admin who may approve fest registrations
type AdminUser struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // Never expose password hash in JSON
	FullName     string     `json:"full_name" db:"full_name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// AdminLoginRequest represents the login request payload
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// AdminRefreshRequest exchanges a refresh token for a new access token
type AdminRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AdminLoginResponse represents the login response
type AdminLoginResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	AdminUser    *AdminUser `json:"admin_user"`
}

// SendNotificationRequest is the admin send-notification body
type SendNotificationRequest struct {
	To   string                 `json:"to" binding:"required,email"`
	Type NotificationType       `json:"type" binding:"required"`
	Data map[string]interface{} `json:"data"`
}
