package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
)

const eventColumns = `
		id, title, fee, max_participants, current_participants,
		min_team_size, max_team_size, status, created_at, updated_at`

// EventRepository reads events. Events are owned by the admin surface.
type EventRepository struct {
	db DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByID retrieves an event. Returns nil, nil when absent.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return getEvent(ctx, r.db, id, false)
}

func getEvent(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Event, error) {
	var event models.Event

	query := `SELECT` + eventColumns + `
		FROM events
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	err := q.GetContext(ctx, &event, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}
