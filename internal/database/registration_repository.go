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

const registrationColumns = `
		id, profile_id, event_id, team_id, payment_status,
		gateway_order_id, gateway_payment_id, payment_proof_url,
		created_at, updated_at`

// RegistrationRepository handles event registration writes
type RegistrationRepository struct {
	db DB
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// GetByProfileAndEvent retrieves the registration for a (profile, event) pair. Returns nil, nil when absent.
func (r *RegistrationRepository) GetByProfileAndEvent(ctx context.Context, profileID, eventID uuid.UUID) (*models.Registration, error) {
	return getRegistration(ctx, r.db, profileID, eventID, false)
}

// WriteEventRegistration inserts or updates the registration for one (profile, event) pair in a
// single transaction. The event row is locked so the capacity check and counter increment are
// serialized per event. The counter moves only when a row becomes completed for the first time.
func (r *RegistrationRepository) WriteEventRegistration(ctx context.Context, in models.EventRegistrationInput) (*models.EventRegistrationResult, error) {
	var result *models.EventRegistrationResult

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		event, err := getEvent(ctx, tx, in.EventID, true)
		if err != nil {
			return err
		}
		if event == nil {
			return ErrNotFound
		}
		if event.Status == models.EventStatusCompleted {
			return ErrEventClosed
		}

		existing, err := getRegistration(ctx, tx, in.ProfileID, in.EventID, true)
		if err != nil {
			return err
		}
		if existing != nil && existing.PaymentStatus == models.PaymentStatusCompleted {
			return ErrAlreadyRegistered
		}

		completing := in.PaymentStatus == models.PaymentStatusCompleted
		if completing && event.IsFull() {
			return ErrEventFull
		}

		var teamID *uuid.UUID
		if existing != nil {
			teamID = existing.TeamID
		}
		if teamID == nil {
			teamID, err = createTeam(ctx, tx, event, in)
			if err != nil {
				return err
			}
		}

		var registrationID uuid.UUID
		if existing != nil {
			registrationID = existing.ID
			err = updateRegistration(ctx, tx, existing.ID, teamID, in)
		} else {
			registrationID, err = insertRegistration(ctx, tx, teamID, in)
		}
		if err != nil {
			return err
		}

		if completing {
			if err := incrementParticipants(ctx, tx, event.ID); err != nil {
				return err
			}
		}

		result = &models.EventRegistrationResult{
			RegistrationID: registrationID,
			ProfileID:      in.ProfileID,
			EventID:        event.ID,
			EventTitle:     event.Title,
			TeamID:         teamID,
			PaymentStatus:  in.PaymentStatus,
			FirstCompleted: completing,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func getRegistration(ctx context.Context, q querier, profileID, eventID uuid.UUID, forUpdate bool) (*models.Registration, error) {
	var reg models.Registration

	query := `SELECT` + registrationColumns + `
		FROM registrations
		WHERE profile_id = $1 AND event_id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	err := q.GetContext(ctx, &reg, query, profileID, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	return &reg, nil
}

// createTeam validates team bounds and inserts a team led by the registering profile.
// Returns nil when the registration carries no team.
func createTeam(ctx context.Context, tx *sqlx.Tx, event *models.Event, in models.EventRegistrationInput) (*uuid.UUID, error) {
	if in.Team == nil || in.Team.TeamName == "" {
		if event.MinTeamSize > 1 {
			return nil, ErrInvalidTeamSize
		}
		return nil, nil
	}

	size := in.Team.Size()
	if event.MinTeamSize > 0 && size < event.MinTeamSize {
		return nil, ErrInvalidTeamSize
	}
	if event.MaxTeamSize > 0 && size > event.MaxTeamSize {
		return nil, ErrInvalidTeamSize
	}

	id := uuid.New()
	query := `
		INSERT INTO teams (id, event_id, leader_id, name, members, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := tx.ExecContext(ctx, query, id, event.ID, in.ProfileID, in.Team.TeamName, in.Team.MembersJSONB())
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	return &id, nil
}

func insertRegistration(ctx context.Context, tx *sqlx.Tx, teamID *uuid.UUID, in models.EventRegistrationInput) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now()

	query := `
		INSERT INTO registrations (
			id, profile_id, event_id, team_id, payment_status,
			gateway_order_id, gateway_payment_id, payment_proof_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $9)
	`

	_, err := tx.ExecContext(ctx, query,
		id, in.ProfileID, in.EventID, teamID, in.PaymentStatus,
		in.GatewayOrderID, in.GatewayPaymentID, in.PaymentProofURL, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return uuid.Nil, ErrAlreadyRegistered
		}
		return uuid.Nil, fmt.Errorf("failed to create registration: %w", err)
	}

	return id, nil
}

func updateRegistration(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, teamID *uuid.UUID, in models.EventRegistrationInput) error {
	query := `
		UPDATE registrations
		SET payment_status = $2,
		    gateway_order_id = COALESCE(NULLIF($3, ''), gateway_order_id),
		    gateway_payment_id = COALESCE(NULLIF($4, ''), gateway_payment_id),
		    payment_proof_url = COALESCE(NULLIF($5, ''), payment_proof_url),
		    team_id = $6,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := tx.ExecContext(ctx, query,
		id, in.PaymentStatus, in.GatewayOrderID, in.GatewayPaymentID, in.PaymentProofURL, teamID,
	)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}

	return nil
}

func incrementParticipants(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID) error {
	query := `
		UPDATE events
		SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to increment participant count: %w", err)
	}

	return nil
}
