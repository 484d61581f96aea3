package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
)

// ErrAdminExists is returned when creating an admin whose email is taken
var ErrAdminExists = errors.New("admin email already exists")

const adminColumns = `id, email, password_hash, full_name, is_active, last_login_at, created_at, updated_at`

// AdminUserRepository stores the operators allowed to approve fest registrations
type AdminUserRepository struct {
	db DB
}

// NewAdminUserRepository creates a new admin user repository
func NewAdminUserRepository(db DB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

// GetByEmail looks an admin up by normalized email. Returns nil, nil when absent.
func (r *AdminUserRepository) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return r.getOne(ctx, "email = $1", email)
}

// GetByID looks an admin up by id. Returns nil, nil when absent.
func (r *AdminUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *AdminUserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := r.db.GetContext(ctx, &admin, `SELECT `+adminColumns+` FROM admin_users WHERE `+where, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("admin lookup (%s): %w", where, err)
	}
	return &admin, nil
}

// Create inserts admin, assigning an id and timestamps when unset
func (r *AdminUserRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	admin.CreatedAt = time.Now()
	admin.UpdatedAt = admin.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_users (id, email, password_hash, full_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		admin.ID, admin.Email, admin.PasswordHash, admin.FullName, admin.IsActive, admin.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return ErrAdminExists
	}
	if err != nil {
		return fmt.Errorf("insert admin %s: %w", admin.Email, err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login
func (r *AdminUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE admin_users SET last_login_at = $1, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	); err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return nil
}
