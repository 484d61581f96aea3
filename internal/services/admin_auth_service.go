package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/pkg/jwt"
)

// AdminRole is the only role accepted on the admin surface
const AdminRole = "admin"

// AdminStore is the admin user persistence used for authentication
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	Create(ctx context.Context, admin *models.AdminUser) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// AdminAuthService handles admin authentication business logic
type AdminAuthService struct {
	admins     AdminStore
	jwtService *jwt.Service
	logger     *logrus.Logger
}

// NewAdminAuthService creates a new admin auth service
func NewAdminAuthService(admins AdminStore, jwtService *jwt.Service, logger *logrus.Logger) *AdminAuthService {
	return &AdminAuthService{
		admins:     admins,
		jwtService: jwtService,
		logger:     logger,
	}
}

// Login authenticates an admin user and returns tokens
func (s *AdminAuthService) Login(ctx context.Context, email, password string) (*models.AdminLoginResponse, error) {
	email = models.NormalizeEmail(email)

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		return nil, models.PersistenceError("failed to load admin user", err)
	}
	if admin == nil {
		return nil, models.AuthenticationError("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("email", email).Warn("Admin login with wrong password")
		return nil, models.AuthenticationError("invalid email or password")
	}

	if !admin.IsActive {
		return nil, models.NewAppError(models.KindForbidden, "account is inactive", nil)
	}

	resp, err := s.issueTokens(admin)
	if err != nil {
		return nil, err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID); err != nil {
		// Log error but don't fail the login
		s.logger.WithError(err).WithField("admin_id", admin.ID).Warn("Failed to update admin last login")
	}

	s.logger.WithField("admin_id", admin.ID).Info("Admin logged in")
	return resp, nil
}

// RefreshToken exchanges a valid refresh token for a fresh token pair
func (s *AdminAuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AdminLoginResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, models.AuthenticationError("invalid refresh token")
	}

	admin, err := s.admins.GetByID(ctx, claims.AdminID)
	if err != nil {
		return nil, models.PersistenceError("failed to load admin user", err)
	}
	if admin == nil {
		return nil, models.AuthenticationError("admin user not found")
	}
	if !admin.IsActive {
		return nil, models.NewAppError(models.KindForbidden, "account is inactive", nil)
	}

	return s.issueTokens(admin)
}

// CreateAdmin hashes the password and stores a new active admin
func (s *AdminAuthService) CreateAdmin(ctx context.Context, email, fullName, password string) (*models.AdminUser, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, models.ValidationError("email is required", nil)
	}
	if len(password) < 8 {
		return nil, models.ValidationError("password must be at least 8 characters", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, database.ErrAdminExists) {
			return nil, models.NewAppError(models.KindAlreadyRegistered, "an admin with this email already exists", err)
		}
		return nil, models.PersistenceError("failed to create admin user", err)
	}

	return admin, nil
}

func (s *AdminAuthService) issueTokens(admin *models.AdminUser) (*models.AdminLoginResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(admin.ID, admin.Email, []string{AdminRole})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtService.GenerateRefreshToken(admin.ID, admin.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &models.AdminLoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.AccessTokenExpiry().Seconds()),
		AdminUser:    admin,
	}, nil
}
