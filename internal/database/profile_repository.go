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

const profileColumns = `
		id, email, full_name, phone, college, year, branch, education,
		is_fest_registered, fest_payment_status, fest_registration_code,
		created_at, updated_at`

// ProfileRepository handles participant profile operations
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByEmail retrieves a profile by normalized email. Returns nil, nil when absent.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile

	query := `SELECT` + profileColumns + `
		FROM profiles
		WHERE email = $1
	`

	err := r.db.GetContext(ctx, &profile, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile by email: %w", err)
	}

	return &profile, nil
}

// GetByID retrieves a profile by ID. Returns nil, nil when absent.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile

	query := `SELECT` + profileColumns + `
		FROM profiles
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &profile, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile by ID: %w", err)
	}

	return &profile, nil
}

// Create inserts a new profile. A concurrent insert for the same email surfaces as
// a unique violation, see IsUniqueViolation.
func (r *ProfileRepository) Create(ctx context.Context, in models.ProfileInput) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now()

	query := `
		INSERT INTO profiles (
			id, email, full_name, phone, college, year, branch, education,
			is_fest_registered, fest_payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), FALSE, 'none', $9, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		id, in.Email, in.FullName, in.Phone, in.College,
		in.Year, in.Branch, in.Education, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create profile: %w", err)
	}

	return id, nil
}

// UpdateDetails refreshes mutable fields. Empty year, branch or education keep the stored value.
func (r *ProfileRepository) UpdateDetails(ctx context.Context, id uuid.UUID, in models.ProfileInput) error {
	query := `
		UPDATE profiles
		SET full_name = $2,
		    phone = $3,
		    college = $4,
		    year = COALESCE(NULLIF($5, ''), year),
		    branch = COALESCE(NULLIF($6, ''), branch),
		    education = COALESCE(NULLIF($7, ''), education),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		id, in.FullName, in.Phone, in.College, in.Year, in.Branch, in.Education,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListOrphans returns profiles older than cutoff with neither an event nor a fest registration
func (r *ProfileRepository) ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]models.OrphanProfile, error) {
	query := `
		SELECT p.id, p.email, p.created_at
		FROM profiles p
		WHERE p.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM registrations r WHERE r.profile_id = p.id)
		  AND NOT EXISTS (SELECT 1 FROM fest_registrations f WHERE f.profile_id = p.id)
		ORDER BY p.created_at ASC
		LIMIT $2
	`

	var orphans []models.OrphanProfile
	if err := r.db.SelectContext(ctx, &orphans, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list orphan profiles: %w", err)
	}

	return orphans, nil
}
