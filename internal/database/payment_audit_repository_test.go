package database

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPaymentAuditRepository_Log(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentAuditRepository(db, quietLogger())

		audit := models.NewPaymentAudit(models.PaymentFlowEvent, models.PaymentEventVerifyingSignature, models.PaymentSourceGateway).
			SetGatewayIDs("order_1", "pay_1").
			SetEmail("asha@college.edu").
			SetMetadata("10.0.0.1", "curl/8.0", "req-1")

		mock.ExpectExec(`INSERT INTO payment_audits`).
			WithArgs(
				audit.ID, "event", "VERIFYING_SIGNATURE", "gateway",
				"order_1", "pay_1", "asha@college.edu", nil, nil,
				nil, nil,
				nil, nil, nil,
				nil, "10.0.0.1", "curl/8.0", "req-1",
				sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Log(ctx, audit))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nil entry", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewPaymentAuditRepository(db, quietLogger())

		assert.Error(t, repo.Log(ctx, nil))
	})

	t.Run("Database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentAuditRepository(db, quietLogger())

		mock.ExpectExec(`INSERT INTO payment_audits`).
			WillReturnError(fmt.Errorf("disk full"))

		err := repo.Log(ctx, models.NewPaymentAudit(models.PaymentFlowOrder, models.PaymentEventOrderCreated, models.PaymentSourceBackend))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to log payment audit")
	})
}

func TestPaymentAuditRepository_CountByEventTypeSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentAuditRepository(db, quietLogger())
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT event_type, COUNT\(\*\) AS count FROM payment_audits`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("REJECTED_BAD_SIGNATURE", 2).
			AddRow("COMPLETED", 40))

	counts, err := repo.CountByEventTypeSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.PaymentEventRejectedBadSignature])
	assert.Equal(t, 40, counts[models.PaymentEventCompleted])
	assert.Zero(t, counts[models.PaymentEventPersistenceFailed])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeadLetterRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationDeadLetterRepository(db)

	dl := &models.NotificationDeadLetter{
		Recipient: "asha@college.edu",
		Type:      models.NotificationFestPaymentReceived,
		Payload:   models.JSONB{"name": "Asha"},
		Attempts:  3,
		LastError: "535 authentication failed",
	}

	mock.ExpectExec(`INSERT INTO notification_dead_letters`).
		WithArgs(sqlmock.AnyArg(), "asha@college.edu", "fest_payment_received", []byte(`{"name":"Asha"}`), 3, "535 authentication failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), dl))
	assert.False(t, dl.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
