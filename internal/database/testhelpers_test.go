package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

var eventCols = []string{
	"id", "title", "fee", "max_participants", "current_participants",
	"min_team_size", "max_team_size", "status", "created_at", "updated_at",
}

func eventRow(id uuid.UUID, maxParticipants, current, minTeam, maxTeam int, status models.EventStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(eventCols).AddRow(
		id.String(), "Hackathon", 150.0, maxParticipants, current,
		minTeam, maxTeam, string(status), now, now,
	)
}

var registrationCols = []string{
	"id", "profile_id", "event_id", "team_id", "payment_status",
	"gateway_order_id", "gateway_payment_id", "payment_proof_url",
	"created_at", "updated_at",
}

func registrationRow(id, profileID, eventID uuid.UUID, status models.PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(registrationCols).AddRow(
		id.String(), profileID.String(), eventID.String(), nil, string(status),
		"order_1", nil, nil, now, now,
	)
}

var festCols = []string{
	"id", "profile_id", "payment_status", "payment_proof", "gateway_order_id", "gateway_payment_id",
	"registration_code", "approved_by", "approved_at", "created_at", "updated_at",
}

func festRow(id, profileID uuid.UUID, status models.FestRegistrationStatus, code interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(festCols).AddRow(
		id.String(), profileID.String(), string(status), "razorpay:pay_old", "order_old", "pay_old",
		code, nil, nil, now, now,
	)
}
