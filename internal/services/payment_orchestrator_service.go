package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/internal/utils"
	"github.com/festpass/registration-backend/pkg/validator"
)

const (
	registrationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	registrationCodeLength   = 6
	maxCodeAttempts          = 5

	festPendingMessage = "pending admin approval"
)

// EventReader loads events by id
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// ProfileReader loads profiles by id
type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// PaymentAuditLogger records payment flow transitions
type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// Notifier queues an outbound notification
type Notifier interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// PaymentOrchestratorConfig holds orchestrator settings
type PaymentOrchestratorConfig struct {
	DefaultCurrency string
}

// PaymentOrchestratorService sequences order creation, signature verification,
// profile resolution, registration writes and notifications.
type PaymentOrchestratorService struct {
	gateway   PaymentGateway
	verifier  SignatureVerifier
	resolver  *ProfileResolver
	writer    *RegistrationWriter
	events    EventReader
	profiles  ProfileReader
	audits    PaymentAuditLogger
	notifier  Notifier
	validator *validator.RequestValidator
	metrics   *MetricsService
	config    PaymentOrchestratorConfig
	logger    *logrus.Logger

	newCode func(now time.Time) (string, error)
}

// NewPaymentOrchestratorService creates a new orchestrator service
func NewPaymentOrchestratorService(
	gateway PaymentGateway,
	resolver *ProfileResolver,
	writer *RegistrationWriter,
	events EventReader,
	profiles ProfileReader,
	audits PaymentAuditLogger,
	notifier Notifier,
	metrics *MetricsService,
	config PaymentOrchestratorConfig,
	logger *logrus.Logger,
) *PaymentOrchestratorService {
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "INR"
	}
	return &PaymentOrchestratorService{
		gateway:   gateway,
		verifier:  gateway.Verifier(),
		resolver:  resolver,
		writer:    writer,
		events:    events,
		profiles:  profiles,
		audits:    audits,
		notifier:  notifier,
		validator: validator.NewRequestValidator(),
		metrics:   metrics,
		config:    config,
		logger:    logger,
		newCode:   GenerateRegistrationCode,
	}
}

// ============================================================================
// CREATE ORDER
// ============================================================================

// CreateOrder converts the amount to minor units and opens a gateway order
func (s *PaymentOrchestratorService) CreateOrder(ctx context.Context, req models.CreateOrderRequest, ip, userAgent, correlationID string) (*models.CreateOrderResponse, error) {
	start := time.Now()

	// 1. Validate before touching the gateway
	if err := s.validator.Struct(req); err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}
	amountMinor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}
	currency, err := NormalizeCurrency(req.Currency, s.config.DefaultCurrency)
	if err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}

	// 2. Create the order
	receipt := NewReceipt()
	order, err := s.gateway.CreateOrder(ctx, amountMinor, currency, receipt)
	s.metrics.ObserveGatewayCall("create_order", s.gateway.Mode(), time.Since(start))
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentFlowOrder, models.PaymentEventOrderFailed, models.PaymentSourceGateway).
			SetAmount(amountMinor, currency).
			SetError(err.Error(), string(models.KindGateway)).
			SetDetails(map[string]interface{}{"receipt": receipt}).
			SetMetadata(ip, userAgent, correlationID).
			SetProcessingTime(start))

		s.logger.WithError(err).WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"amount_minor":   amountMinor,
			"currency":       currency,
		}).Error("Failed to create gateway order")
		return nil, models.GatewayError("failed to create payment order", err)
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentFlowOrder, models.PaymentEventOrderCreated, models.PaymentSourceBackend).
		SetGatewayIDs(order.ID, "").
		SetAmount(order.Amount, order.Currency).
		SetDetails(map[string]interface{}{"receipt": order.Receipt, "mode": s.gateway.Mode()}).
		SetMetadata(ip, userAgent, correlationID).
		SetProcessingTime(start))

	s.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"order_id":       order.ID,
		"amount_minor":   order.Amount,
		"currency":       order.Currency,
	}).Info("Payment order created")

	return &models.CreateOrderResponse{
		OrderID:      order.ID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Receipt:      order.Receipt,
		GatewayKeyID: s.gateway.KeyID(),
		TestMode:     s.gateway.Mode() == GatewayModeTest,
	}, nil
}

// ============================================================================
// VERIFY EVENT PAYMENT
// ============================================================================

// VerifyEventPayment checks the gateway signature and, only if it is authentic,
// records a completed event registration.
func (s *PaymentOrchestratorService) VerifyEventPayment(ctx context.Context, req models.VerifyEventPaymentRequest) (*models.EventRegistrationResult, error) {
	start := time.Now()
	reg := req.Registration
	meta := attemptMeta{
		flow:          models.PaymentFlowEvent,
		orderID:       req.OrderID,
		paymentID:     req.PaymentID,
		email:         models.NormalizeEmail(reg.Email),
		ip:            req.IPAddress,
		userAgent:     req.UserAgent,
		correlationID: req.CorrelationID,
		start:         start,
	}

	// 1. Validate
	if err := s.validator.Struct(req); err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}
	eventID, err := uuid.Parse(reg.EventID)
	if err != nil {
		return nil, models.ValidationError("eventId must be a valid UUID", err)
	}
	meta.eventID = eventID

	// 2. Verify signature; nothing is persisted on failure
	if !s.verifySignature(ctx, meta, req.PaymentCallback) {
		return nil, models.AuthenticationError("payment signature verification failed")
	}

	// 3. Persist; from here the attempt runs to completion even if the client goes away
	ctx = context.WithoutCancel(ctx)
	s.audit(ctx, meta.entry(models.PaymentEventPersisting, models.PaymentSourceBackend))

	result, err := s.writeEventRegistration(ctx, &meta, reg, eventID, models.EventRegistrationInput{
		EventID:          eventID,
		Team:             reg.TeamInfo,
		PaymentStatus:    models.PaymentStatusCompleted,
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		PaymentProofURL:  reg.PaymentProofURL,
	}, true)
	if err != nil {
		return nil, err
	}

	// 4. Notify
	s.notifyRegistration(ctx, meta, reg, result)

	return result, nil
}

// ============================================================================
// FREE EVENT REGISTRATION
// ============================================================================

// RegisterFreeEvent registers a participant for a zero-fee event without a gateway round trip
func (s *PaymentOrchestratorService) RegisterFreeEvent(ctx context.Context, req models.FreeEventRegistrationRequest) (*models.EventRegistrationResult, error) {
	reg := req.Registration
	meta := attemptMeta{
		flow:          models.PaymentFlowFree,
		email:         models.NormalizeEmail(reg.Email),
		ip:            req.IPAddress,
		userAgent:     req.UserAgent,
		correlationID: req.CorrelationID,
		start:         time.Now(),
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}
	eventID, err := uuid.Parse(reg.EventID)
	if err != nil {
		return nil, models.ValidationError("eventId must be a valid UUID", err)
	}
	meta.eventID = eventID

	ctx = context.WithoutCancel(ctx)
	s.audit(ctx, meta.entry(models.PaymentEventPersisting, models.PaymentSourceBackend))

	result, err := s.writeEventRegistration(ctx, &meta, reg, eventID, models.EventRegistrationInput{
		EventID:         eventID,
		Team:            reg.TeamInfo,
		PaymentStatus:   models.PaymentStatusCompleted,
		PaymentProofURL: reg.PaymentProofURL,
	}, false)
	if err != nil {
		return nil, err
	}

	s.notifyRegistration(ctx, meta, reg, result)

	return result, nil
}

// writeEventRegistration loads the event, resolves the profile and writes the registration.
// paid=false rejects events that carry a fee.
func (s *PaymentOrchestratorService) writeEventRegistration(
	ctx context.Context,
	meta *attemptMeta,
	reg models.EventRegistrationPayload,
	eventID uuid.UUID,
	in models.EventRegistrationInput,
	paid bool,
) (*models.EventRegistrationResult, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, s.persistenceFailed(ctx, *meta, "failed to load event", err)
	}
	if event == nil {
		s.audit(ctx, meta.entry(models.PaymentEventPersistenceFailed, models.PaymentSourceBackend).
			SetError("event not found", string(models.KindNotFound)))
		return nil, models.NotFoundError("event not found")
	}
	if !paid && !event.IsFree() {
		s.audit(ctx, meta.entry(models.PaymentEventPersistenceFailed, models.PaymentSourceBackend).
			SetError("event requires payment", string(models.KindValidation)))
		return nil, models.ValidationError("this event requires payment", nil)
	}

	profileID, err := s.resolver.Resolve(ctx, reg.ProfileInput())
	if err != nil {
		return nil, s.persistenceFailed(ctx, *meta, "failed to save participant profile", err)
	}
	meta.profileID = profileID
	in.ProfileID = profileID

	result, err := s.writer.WriteEventRegistration(ctx, in)
	if err != nil {
		appErr := mapRegistrationError(err)
		s.audit(ctx, meta.entry(models.PaymentEventPersistenceFailed, models.PaymentSourceBackend).
			SetError(err.Error(), string(appErr.Kind)))
		s.metrics.RecordRegistration("event", string(appErr.Kind))
		s.logger.WithError(err).WithFields(meta.fields()).Warn("Event registration rejected")
		return nil, appErr
	}

	s.metrics.RecordRegistration("event", string(result.PaymentStatus))
	s.audit(ctx, meta.entry(models.PaymentEventCompleted, models.PaymentSourceBackend).
		SetDetails(map[string]interface{}{
			"registration_id": result.RegistrationID.String(),
			"counted":         result.FirstCompleted,
		}))

	s.logger.WithFields(meta.fields()).WithField("registration_id", result.RegistrationID).Info("Event registration completed")
	return result, nil
}

func (s *PaymentOrchestratorService) notifyRegistration(ctx context.Context, meta attemptMeta, reg models.EventRegistrationPayload, result *models.EventRegistrationResult) {
	data := map[string]interface{}{
		"name":           reg.FullName,
		"event_title":    result.EventTitle,
		"payment_status": string(result.PaymentStatus),
	}
	if meta.paymentID != "" {
		data["payment_id"] = meta.paymentID
	}
	if reg.TeamInfo != nil {
		data["team_name"] = reg.TeamInfo.TeamName
	}
	s.notify(ctx, meta, models.Notification{
		To:   meta.email,
		Type: models.NotificationRegistrationConfirmation,
		Data: data,
	})
}

// ============================================================================
// VERIFY FEST PAYMENT
// ============================================================================

// VerifyFestPayment checks the gateway signature and records a pending fest registration.
// The registration code is assigned later by ApproveFestRegistration.
func (s *PaymentOrchestratorService) VerifyFestPayment(ctx context.Context, req models.VerifyFestPaymentRequest) (*models.FestPaymentResult, error) {
	reg := req.Registration
	meta := attemptMeta{
		flow:          models.PaymentFlowFest,
		orderID:       req.OrderID,
		paymentID:     req.PaymentID,
		email:         models.NormalizeEmail(reg.Email),
		ip:            req.IPAddress,
		userAgent:     req.UserAgent,
		correlationID: req.CorrelationID,
		start:         time.Now(),
	}

	// 1. Validate
	if err := s.validator.Struct(req); err != nil {
		return nil, models.ValidationError(err.Error(), err)
	}

	// 2. Verify signature
	if !s.verifySignature(ctx, meta, req.PaymentCallback) {
		return nil, models.AuthenticationError("payment signature verification failed")
	}

	// 3. Persist
	ctx = context.WithoutCancel(ctx)
	s.audit(ctx, meta.entry(models.PaymentEventPersisting, models.PaymentSourceBackend))

	profileID, err := s.resolver.Resolve(ctx, reg.ProfileInput())
	if err != nil {
		return nil, s.persistenceFailed(ctx, meta, "failed to save participant profile", err)
	}
	meta.profileID = profileID

	festReg, err := s.writer.WriteFestRegistration(ctx, profileID, req.OrderID, req.PaymentID)
	if err != nil {
		appErr := mapRegistrationError(err)
		if errors.Is(err, database.ErrAlreadyRegistered) {
			appErr = models.AlreadyRegisteredError("already registered for the fest", err)
		}
		s.audit(ctx, meta.entry(models.PaymentEventPersistenceFailed, models.PaymentSourceBackend).
			SetError(err.Error(), string(appErr.Kind)))
		s.metrics.RecordRegistration("fest", string(appErr.Kind))
		s.logger.WithError(err).WithFields(meta.fields()).Warn("Fest registration rejected")
		return nil, appErr
	}

	s.metrics.RecordRegistration("fest", string(festReg.PaymentStatus))
	s.audit(ctx, meta.entry(models.PaymentEventCompleted, models.PaymentSourceBackend).
		SetDetails(map[string]interface{}{"fest_registration_id": festReg.ID.String()}))

	s.logger.WithFields(meta.fields()).WithField("fest_registration_id", festReg.ID).Info("Fest payment recorded, awaiting approval")

	// 4. Notify
	s.notify(ctx, meta, models.Notification{
		To:   meta.email,
		Type: models.NotificationFestPaymentReceived,
		Data: map[string]interface{}{
			"name":       reg.FullName,
			"payment_id": req.PaymentID,
		},
	})

	return &models.FestPaymentResult{
		FestRegistrationID: festReg.ID,
		ProfileID:          profileID,
		PaymentStatus:      festReg.PaymentStatus,
		Message:            festPendingMessage,
	}, nil
}

// ============================================================================
// ADMIN APPROVAL
// ============================================================================

// ApproveFestRegistration completes a pending fest registration, assigns a unique
// registration code and notifies the participant.
func (s *PaymentOrchestratorService) ApproveFestRegistration(ctx context.Context, festRegistrationID, approvedBy uuid.UUID) (*models.FestRegistration, error) {
	start := time.Now()

	existing, err := s.writer.GetFestRegistration(ctx, festRegistrationID)
	if err != nil {
		return nil, models.PersistenceError("failed to load fest registration", err)
	}
	if existing == nil {
		return nil, models.NotFoundError("fest registration not found")
	}
	if existing.PaymentStatus != models.FestRegistrationPending {
		return nil, models.AlreadyRegisteredError("fest registration is already approved", database.ErrNotPending)
	}

	ctx = context.WithoutCancel(ctx)

	var approved *models.FestRegistration
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode(time.Now())
		if err != nil {
			return nil, models.NewAppError(models.KindInternal, "failed to generate registration code", err)
		}

		approved, err = s.writer.ApproveFestRegistration(ctx, festRegistrationID, approvedBy, code)
		if err == nil {
			break
		}
		if errors.Is(err, database.ErrCodeCollision) {
			s.logger.WithFields(logrus.Fields{
				"fest_registration_id": festRegistrationID,
				"attempt":              attempt,
			}).Warn("Registration code collision, regenerating")
			continue
		}
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, models.NotFoundError("fest registration not found")
		case errors.Is(err, database.ErrNotPending):
			return nil, models.AlreadyRegisteredError("fest registration is already approved", err)
		default:
			return nil, models.PersistenceError("failed to approve fest registration", err)
		}
	}
	if approved == nil {
		return nil, models.PersistenceError("could not allocate a unique registration code", database.ErrCodeCollision)
	}

	code := ""
	if approved.RegistrationCode != nil {
		code = *approved.RegistrationCode
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentFlowApproval, models.PaymentEventApproved, models.PaymentSourceAdmin).
		SetProfile(approved.ProfileID).
		SetDetails(map[string]interface{}{
			"fest_registration_id": approved.ID.String(),
			"approved_by":          approvedBy.String(),
			"registration_code":    code,
		}).
		SetProcessingTime(start))

	s.logger.WithFields(logrus.Fields{
		"fest_registration_id": approved.ID,
		"profile_id":           approved.ProfileID,
		"approved_by":          approvedBy,
		"registration_code":    code,
	}).Info("Fest registration approved")

	profile, err := s.profiles.GetByID(ctx, approved.ProfileID)
	if err != nil || profile == nil {
		s.logger.WithError(err).WithField("profile_id", approved.ProfileID).Warn("Approved fest registration has no readable profile, skipping notification")
		return approved, nil
	}

	s.notify(ctx, attemptMeta{flow: models.PaymentFlowApproval, email: profile.Email, profileID: profile.ID}, models.Notification{
		To:   profile.Email,
		Type: models.NotificationFestCodeApproved,
		Data: map[string]interface{}{
			"name":              profile.FullName,
			"registration_code": code,
		},
	})

	return approved, nil
}

// SendNotification queues an ad-hoc notification on behalf of an admin
func (s *PaymentOrchestratorService) SendNotification(ctx context.Context, n models.Notification) error {
	n.To = models.NormalizeEmail(n.To)
	if err := s.validator.Struct(n); err != nil {
		return models.ValidationError(err.Error(), err)
	}
	if !n.Type.IsValid() {
		return models.ValidationError(fmt.Sprintf("unknown notification type: %s", n.Type), nil)
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil {
		return models.NewAppError(models.KindInternal, "failed to queue notification", err)
	}
	return nil
}

// GenerateRegistrationCode returns FEST-<year>-<6 uppercase alphanumerics>
func GenerateRegistrationCode(now time.Time) (string, error) {
	suffix := make([]byte, registrationCodeLength)
	limit := big.NewInt(int64(len(registrationCodeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		suffix[i] = registrationCodeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("FEST-%d-%s", now.Year(), suffix), nil
}

// ============================================================================
// HELPERS
// ============================================================================

// attemptMeta carries the identifiers of one registration attempt for audits and logs
type attemptMeta struct {
	flow          models.PaymentFlow
	orderID       string
	paymentID     string
	email         string
	profileID     uuid.UUID
	eventID       uuid.UUID
	ip            string
	userAgent     string
	correlationID string
	start         time.Time
}

func (m attemptMeta) entry(eventType models.PaymentEventType, source models.PaymentEventSource) *models.PaymentAudit {
	a := models.NewPaymentAudit(m.flow, eventType, source).
		SetGatewayIDs(m.orderID, m.paymentID).
		SetEmail(m.email).
		SetMetadata(m.ip, m.userAgent, m.correlationID)
	if m.profileID != uuid.Nil {
		a.SetProfile(m.profileID)
	}
	if m.eventID != uuid.Nil {
		a.SetEvent(m.eventID)
	}
	if !m.start.IsZero() {
		a.SetProcessingTime(m.start)
	}
	return a
}

func (m attemptMeta) fields() logrus.Fields {
	f := logrus.Fields{
		"flow":           m.flow,
		"correlation_id": m.correlationID,
		"email":          m.email,
	}
	if m.orderID != "" {
		f["order_id"] = m.orderID
	}
	if m.paymentID != "" {
		f["payment_id"] = m.paymentID
	}
	if m.profileID != uuid.Nil {
		f["profile_id"] = m.profileID
	}
	if m.eventID != uuid.Nil {
		f["event_id"] = m.eventID
	}
	return f
}

func (s *PaymentOrchestratorService) verifySignature(ctx context.Context, meta attemptMeta, cb models.PaymentCallback) bool {
	s.audit(ctx, meta.entry(models.PaymentEventVerifyingSignature, models.PaymentSourceGateway))

	if s.verifier.Verify(cb.OrderID, cb.PaymentID, cb.Signature) {
		return true
	}

	s.audit(ctx, meta.entry(models.PaymentEventRejectedBadSignature, models.PaymentSourceGateway).
		SetError("signature mismatch", string(models.KindAuthentication)))
	s.logger.WithFields(meta.fields()).Warn("Rejected payment with invalid signature")
	return false
}

func (s *PaymentOrchestratorService) persistenceFailed(ctx context.Context, meta attemptMeta, message string, err error) error {
	s.audit(ctx, meta.entry(models.PaymentEventPersistenceFailed, models.PaymentSourceBackend).
		SetError(err.Error(), string(models.KindPersistence)))
	s.logger.WithError(err).WithFields(meta.fields()).Error(message)

	if meta.paymentID != "" {
		message = fmt.Sprintf("%s; your payment %s was received, please contact support", message, meta.paymentID)
	}
	return models.PersistenceError(message, err)
}

// notify queues a notification. Failures, including panics, are logged and never returned.
func (s *PaymentOrchestratorService) notify(ctx context.Context, meta attemptMeta, n models.Notification) {
	fields := meta.fields()
	fields["notification_type"] = n.Type

	defer func() {
		if p := recover(); p != nil {
			s.logger.WithFields(fields).WithField("panic", fmt.Sprint(p)).Error("Notification dispatch panicked")
		}
	}()

	if meta.flow != models.PaymentFlowApproval {
		s.audit(ctx, meta.entry(models.PaymentEventNotifying, models.PaymentSourceBackend).
			SetDetails(map[string]interface{}{"type": string(n.Type)}))
	}

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(ctx, n); err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Failed to queue notification")
	}
}

// audit records a transition; audit storage failures never affect the flow
func (s *PaymentOrchestratorService) audit(ctx context.Context, a *models.PaymentAudit) {
	s.metrics.RecordPaymentEvent(string(a.Flow), string(a.EventType))
	if s.audits == nil {
		return
	}
	if a.UserAgent != nil {
		if a.Details == nil {
			a.Details = models.JSONB{}
		}
		a.Details["device"] = utils.ParseUserAgent(*a.UserAgent).AuditDetails()
	}
	if err := s.audits.Log(ctx, a); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"flow":       a.Flow,
			"event_type": a.EventType,
		}).Warn("Failed to write payment audit")
	}
}

// mapRegistrationError turns writer sentinels into user-facing errors
func mapRegistrationError(err error) *models.AppError {
	switch {
	case errors.Is(err, database.ErrAlreadyRegistered):
		return models.AlreadyRegisteredError("already registered for this event", err)
	case errors.Is(err, database.ErrEventFull):
		return models.NewAppError(models.KindValidation, "this event is full", err)
	case errors.Is(err, database.ErrEventClosed):
		return models.NewAppError(models.KindValidation, "registration for this event is closed", err)
	case errors.Is(err, database.ErrInvalidTeamSize):
		return models.NewAppError(models.KindValidation, "team size is outside the allowed range for this event", err)
	case errors.Is(err, database.ErrNotFound):
		return models.NotFoundError("event not found")
	default:
		return models.PersistenceError("failed to save registration", err)
	}
}
