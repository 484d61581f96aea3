package services

import (
	"context"

	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventRegistrationStore persists event registrations transactionally
type EventRegistrationStore interface {
	WriteEventRegistration(ctx context.Context, in models.EventRegistrationInput) (*models.EventRegistrationResult, error)
}

// FestRegistrationStore persists whole-fest registrations
type FestRegistrationStore interface {
	CreatePending(ctx context.Context, in database.FestPaymentInput) (*models.FestRegistration, error)
	Approve(ctx context.Context, id, approvedBy uuid.UUID, code string) (*models.FestRegistration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.FestRegistration, error)
}

// RegistrationWriter writes the registration state that follows a verified payment
type RegistrationWriter struct {
	events EventRegistrationStore
	fest   FestRegistrationStore
	logger *logrus.Logger
}

// NewRegistrationWriter creates a new registration writer
func NewRegistrationWriter(events EventRegistrationStore, fest FestRegistrationStore, logger *logrus.Logger) *RegistrationWriter {
	return &RegistrationWriter{
		events: events,
		fest:   fest,
		logger: logger,
	}
}

// WriteEventRegistration records the payment outcome for a (profile, event) pair.
// A second completed write for the same pair yields database.ErrAlreadyRegistered.
func (w *RegistrationWriter) WriteEventRegistration(ctx context.Context, in models.EventRegistrationInput) (*models.EventRegistrationResult, error) {
	result, err := w.events.WriteEventRegistration(ctx, in)
	if err != nil {
		return nil, err
	}

	w.logger.WithFields(logrus.Fields{
		"registration_id": result.RegistrationID,
		"profile_id":      result.ProfileID,
		"event_id":        result.EventID,
		"payment_status":  result.PaymentStatus,
		"counted":         result.FirstCompleted,
	}).Info("Event registration written")

	return result, nil
}

// WriteFestRegistration records a verified fest payment as pending admin approval.
// The registration code stays null until ApproveFestRegistration.
func (w *RegistrationWriter) WriteFestRegistration(ctx context.Context, profileID uuid.UUID, orderID, paymentID string) (*models.FestRegistration, error) {
	reg, err := w.fest.CreatePending(ctx, database.FestPaymentInput{
		ProfileID:        profileID,
		PaymentProof:     models.GatewayProof(paymentID),
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
	})
	if err != nil {
		return nil, err
	}

	w.logger.WithFields(logrus.Fields{
		"fest_registration_id": reg.ID,
		"profile_id":           profileID,
	}).Info("Fest registration pending approval")

	return reg, nil
}

// ApproveFestRegistration completes a pending fest registration with the given code
func (w *RegistrationWriter) ApproveFestRegistration(ctx context.Context, id, approvedBy uuid.UUID, code string) (*models.FestRegistration, error) {
	return w.fest.Approve(ctx, id, approvedBy, code)
}

// GetFestRegistration looks up a fest registration by id
func (w *RegistrationWriter) GetFestRegistration(ctx context.Context, id uuid.UUID) (*models.FestRegistration, error) {
	return w.fest.GetByID(ctx, id)
}
