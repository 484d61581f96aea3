package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const festRegistrationColumns = `
		id, profile_id, payment_status, payment_proof, gateway_order_id, gateway_payment_id,
		registration_code, approved_by, approved_at, created_at, updated_at`

// FestRegistrationRepository handles whole-fest registration writes
type FestRegistrationRepository struct {
	db DB
}

// NewFestRegistrationRepository creates a new fest registration repository
func NewFestRegistrationRepository(db DB) *FestRegistrationRepository {
	return &FestRegistrationRepository{db: db}
}

// FestPaymentInput carries the gateway evidence recorded with a pending fest registration
type FestPaymentInput struct {
	ProfileID        uuid.UUID
	PaymentProof     string
	GatewayOrderID   string
	GatewayPaymentID string
}

// CreatePending records a verified fest payment as a pending registration with no code and moves
// the profile's fest payment status to pending. The profile is not marked fest-registered here.
// A pending row for the same profile is refreshed and returned; a completed one is a conflict.
func (r *FestRegistrationRepository) CreatePending(ctx context.Context, in FestPaymentInput) (*models.FestRegistration, error) {
	var reg *models.FestRegistration

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		existing, err := getFestRegistration(ctx, tx, `profile_id = $1`, in.ProfileID)
		if err != nil {
			return err
		}

		switch {
		case existing != nil && existing.PaymentStatus == models.FestRegistrationCompleted:
			return ErrAlreadyRegistered
		case existing != nil:
			if err := refreshPendingProof(ctx, tx, existing.ID, in); err != nil {
				return err
			}
			reg = existing
			reg.PaymentProof = stringPtr(in.PaymentProof)
			reg.GatewayOrderID = stringPtr(in.GatewayOrderID)
			reg.GatewayPaymentID = stringPtr(in.GatewayPaymentID)
		default:
			reg, err = insertPendingFestRegistration(ctx, tx, in)
			if err != nil {
				return err
			}
		}

		query := `
			UPDATE profiles
			SET fest_payment_status = 'pending', updated_at = NOW()
			WHERE id = $1 AND fest_payment_status <> 'completed'
		`
		if _, err := tx.ExecContext(ctx, query, in.ProfileID); err != nil {
			return fmt.Errorf("failed to update profile fest payment status: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return reg, nil
}

// Approve completes a pending fest registration, assigns its code and marks the profile
// fest-registered, all in one transaction.
func (r *FestRegistrationRepository) Approve(ctx context.Context, id, approvedBy uuid.UUID, code string) (*models.FestRegistration, error) {
	var reg *models.FestRegistration

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		existing, err := getFestRegistration(ctx, tx, `id = $1`, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		if existing.PaymentStatus != models.FestRegistrationPending {
			return ErrNotPending
		}

		now := time.Now()
		query := `
			UPDATE fest_registrations
			SET payment_status = 'completed', registration_code = $2,
			    approved_by = $3, approved_at = $4, updated_at = $4
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query, id, code, approvedBy, now); err != nil {
			if IsUniqueViolation(err) {
				return ErrCodeCollision
			}
			return fmt.Errorf("failed to approve fest registration: %w", err)
		}

		query = `
			UPDATE profiles
			SET is_fest_registered = TRUE, fest_payment_status = 'completed',
			    fest_registration_code = $2, updated_at = $3
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, query, existing.ProfileID, code, now); err != nil {
			if IsUniqueViolation(err) {
				return ErrCodeCollision
			}
			return fmt.Errorf("failed to mark profile fest-registered: %w", err)
		}

		reg = existing
		reg.PaymentStatus = models.FestRegistrationCompleted
		reg.RegistrationCode = &code
		reg.ApprovedBy = &approvedBy
		reg.ApprovedAt = &now
		reg.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	return reg, nil
}

// GetByID retrieves a fest registration. Returns nil, nil when absent.
func (r *FestRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FestRegistration, error) {
	var reg models.FestRegistration

	query := `SELECT` + festRegistrationColumns + `
		FROM fest_registrations
		WHERE id = $1
	`

	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fest registration: %w", err)
	}

	return &reg, nil
}

// ListByStatus lists fest registrations with participant details, oldest first
func (r *FestRegistrationRepository) ListByStatus(ctx context.Context, status models.FestRegistrationStatus, limit, offset int) ([]models.FestRegistrationWithProfile, error) {
	query := `
		SELECT f.id, f.profile_id, f.payment_status, f.payment_proof, f.gateway_order_id,
		       f.gateway_payment_id, f.registration_code, f.approved_by, f.approved_at,
		       f.created_at, f.updated_at, p.email, p.full_name, p.college
		FROM fest_registrations f
		JOIN profiles p ON p.id = f.profile_id
		WHERE f.payment_status = $1
		ORDER BY f.created_at ASC
		LIMIT $2 OFFSET $3
	`

	var regs []models.FestRegistrationWithProfile
	if err := r.db.SelectContext(ctx, &regs, query, status, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list fest registrations: %w", err)
	}

	return regs, nil
}

// CountByStatus counts fest registrations in a given status
func (r *FestRegistrationRepository) CountByStatus(ctx context.Context, status models.FestRegistrationStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM fest_registrations WHERE payment_status = $1`

	if err := r.db.GetContext(ctx, &count, query, status); err != nil {
		return 0, fmt.Errorf("failed to count fest registrations: %w", err)
	}

	return count, nil
}

func getFestRegistration(ctx context.Context, tx *sqlx.Tx, where string, arg interface{}) (*models.FestRegistration, error) {
	var reg models.FestRegistration

	query := `SELECT` + festRegistrationColumns + `
		FROM fest_registrations
		WHERE ` + where + `
		FOR UPDATE
	`

	if err := tx.GetContext(ctx, &reg, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fest registration: %w", err)
	}

	return &reg, nil
}

func insertPendingFestRegistration(ctx context.Context, tx *sqlx.Tx, in FestPaymentInput) (*models.FestRegistration, error) {
	now := time.Now()
	reg := &models.FestRegistration{
		ID:               uuid.New(),
		ProfileID:        in.ProfileID,
		PaymentStatus:    models.FestRegistrationPending,
		PaymentProof:     stringPtr(in.PaymentProof),
		GatewayOrderID:   stringPtr(in.GatewayOrderID),
		GatewayPaymentID: stringPtr(in.GatewayPaymentID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	query := `
		INSERT INTO fest_registrations (
			id, profile_id, payment_status, payment_proof, gateway_order_id,
			gateway_payment_id, registration_code, created_at, updated_at
		) VALUES ($1, $2, 'pending', $3, $4, $5, NULL, $6, $6)
	`

	_, err := tx.ExecContext(ctx, query,
		reg.ID, reg.ProfileID, reg.PaymentProof, reg.GatewayOrderID, reg.GatewayPaymentID, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create fest registration: %w", err)
	}

	return reg, nil
}

func refreshPendingProof(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, in FestPaymentInput) error {
	query := `
		UPDATE fest_registrations
		SET payment_proof = $2, gateway_order_id = $3, gateway_payment_id = $4, updated_at = NOW()
		WHERE id = $1
	`

	_, err := tx.ExecContext(ctx, query,
		id, stringPtr(in.PaymentProof), stringPtr(in.GatewayOrderID), stringPtr(in.GatewayPaymentID),
	)
	if err != nil {
		return fmt.Errorf("failed to refresh fest registration proof: %w", err)
	}

	return nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
