package database

import (
	"context"
	"fmt"
	"time"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
)

// NotificationDeadLetterRepository stores notifications that exhausted their retries
type NotificationDeadLetterRepository struct {
	db DB
}

// NewNotificationDeadLetterRepository creates a new dead letter repository
func NewNotificationDeadLetterRepository(db DB) *NotificationDeadLetterRepository {
	return &NotificationDeadLetterRepository{db: db}
}

// Create records a dead-lettered notification
func (r *NotificationDeadLetterRepository) Create(ctx context.Context, dl *models.NotificationDeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO notification_dead_letters (id, recipient, type, payload, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		dl.ID, dl.Recipient, dl.Type, dl.Payload, dl.Attempts, dl.LastError, dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification dead letter: %w", err)
	}

	return nil
}

// CountSince counts dead letters recorded after since
func (r *NotificationDeadLetterRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notification_dead_letters WHERE created_at > $1`

	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count notification dead letters: %w", err)
	}

	return count, nil
}
