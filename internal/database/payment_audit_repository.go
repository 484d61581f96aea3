package database

import (
	"context"
	"fmt"
	"time"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry. Payment state transitions must never be dropped silently,
// so failures are logged at error level as well as returned.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, flow, event_type, event_source,
			order_id, payment_id, email, profile_id, event_id,
			amount_minor, currency,
			error_message, error_code, details,
			processing_time_ms, ip_address, user_agent, correlation_id,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11,
			$12, $13, $14,
			$15, $16, $17, $18,
			$19
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.Flow, audit.EventType, audit.EventSource,
		audit.OrderID, audit.PaymentID, audit.Email, audit.ProfileID, audit.EventID,
		audit.AmountMinor, audit.Currency,
		audit.ErrorMessage, audit.ErrorCode, audit.Details,
		audit.ProcessingTimeMs, audit.IPAddress, audit.UserAgent, audit.CorrelationID,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"flow":       audit.Flow,
			"order_id":   audit.OrderID,
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"flow":       audit.Flow,
	}).Debug("Payment audit logged")

	return nil
}

// GetByOrderID retrieves the audit trail for a gateway order in chronological order
func (r *PaymentAuditRepository) GetByOrderID(ctx context.Context, orderID string) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT * FROM payment_audits
		WHERE order_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get audits by order ID: %w", err)
	}

	return audits, nil
}

// CountByEventTypeSince counts entries of each event type created after since
func (r *PaymentAuditRepository) CountByEventTypeSince(ctx context.Context, since time.Time) (map[models.PaymentEventType]int, error) {
	var rows []struct {
		EventType models.PaymentEventType `db:"event_type"`
		Count     int                     `db:"count"`
	}
	query := `
		SELECT event_type, COUNT(*) AS count
		FROM payment_audits
		WHERE created_at > $1
		GROUP BY event_type`

	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	counts := make(map[models.PaymentEventType]int, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}
