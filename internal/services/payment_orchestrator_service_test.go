package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
)

const testSecret = "live_secret"

type orchestratorFixture struct {
	svc      *PaymentOrchestratorService
	profiles *memoryProfileStore
	store    *memoryRegistrationStore
	audits   *recordingAudits
	notifier *recordingNotifier
}

func newOrchestratorFixture(t *testing.T, gateway PaymentGateway) *orchestratorFixture {
	t.Helper()
	logger := quietLogger()

	profiles := newMemoryProfileStore()
	store := newMemoryRegistrationStore()
	audits := &recordingAudits{}
	notifier := &recordingNotifier{}

	svc := NewPaymentOrchestratorService(
		gateway,
		NewProfileResolver(profiles, logger),
		NewRegistrationWriter(store, festStoreAdapter{store}, logger),
		store,
		profiles,
		audits,
		notifier,
		NewMetricsService(),
		PaymentOrchestratorConfig{DefaultCurrency: "INR"},
		logger,
	)

	return &orchestratorFixture{svc: svc, profiles: profiles, store: store, audits: audits, notifier: notifier}
}

func liveGateway(t *testing.T) PaymentGateway {
	t.Helper()
	gw, err := NewRazorpayGateway(config.PaymentConfig{KeyID: "rzp_live_key", KeySecret: testSecret, APIURL: "http://127.0.0.1:1"}, quietLogger())
	require.NoError(t, err)
	return gw
}

func validEventPayload(eventID uuid.UUID) models.EventRegistrationPayload {
	return models.EventRegistrationPayload{
		Email:    "Asha@Example.com",
		FullName: "Asha Rao",
		Phone:    "9876543210",
		College:  "IIT Madras",
		EventID:  eventID.String(),
	}
}

func signedCallback(orderID, paymentID string) models.PaymentCallback {
	return models.PaymentCallback{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: ComputeSignature([]byte(testSecret), orderID, paymentID),
	}
}

func validFestRequest() models.VerifyFestPaymentRequest {
	return models.VerifyFestPaymentRequest{
		PaymentCallback: signedCallback("order_F1", "pay_F1"),
		Registration: models.FestRegistrationPayload{
			Email:     "ravi@example.com",
			FullName:  "Ravi Kumar",
			Phone:     "+91 91234 56789",
			College:   "NIT Trichy",
			Year:      "3",
			Branch:    "CSE",
			Education: "B.Tech",
		},
		CorrelationID: "req-fest-1",
	}
}

// ============================================================================
// CREATE ORDER
// ============================================================================

func TestCreateOrder_ConvertsToMinorUnits(t *testing.T) {
	f := newOrchestratorFixture(t, NewTestGateway("", quietLogger()))

	resp, err := f.svc.CreateOrder(context.Background(), models.CreateOrderRequest{Amount: 150.00, Currency: "INR"}, "10.0.0.1", "curl/8", "req-1")
	require.NoError(t, err)

	assert.Equal(t, int64(15000), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.True(t, strings.HasPrefix(resp.OrderID, TestOrderPrefix))
	assert.True(t, strings.HasPrefix(resp.Receipt, "rcpt_"))
	assert.True(t, resp.TestMode)
	assert.Equal(t, []models.PaymentEventType{models.PaymentEventOrderCreated}, f.audits.types())
}

func TestCreateOrder_AuditCarriesDeviceInfo(t *testing.T) {
	f := newOrchestratorFixture(t, NewTestGateway("", quietLogger()))
	ua := "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

	_, err := f.svc.CreateOrder(context.Background(), models.CreateOrderRequest{Amount: 10}, "203.0.113.5", ua, "req-ua")
	require.NoError(t, err)

	require.Len(t, f.audits.entries, 1)
	entry := f.audits.entries[0]
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "203.0.113.5", *entry.IPAddress)
	device, ok := entry.Details["device"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "mobile", device["device_type"])
	assert.Equal(t, "android", device["platform"])
}

func TestCreateOrder_DefaultsCurrency(t *testing.T) {
	f := newOrchestratorFixture(t, NewTestGateway("", quietLogger()))

	resp, err := f.svc.CreateOrder(context.Background(), models.CreateOrderRequest{Amount: 99.5}, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, int64(9950), resp.Amount)
}

func TestCreateOrder_ValidationBeforeGateway(t *testing.T) {
	f := newOrchestratorFixture(t, failingGateway{NewTestGateway("", quietLogger())})

	for _, req := range []models.CreateOrderRequest{
		{Amount: 0},
		{Amount: -10},
		{Amount: 10, Currency: "RUPEE"},
		{Amount: models.MaxOrderAmount + 1},
		{Amount: 1e17},
	} {
		_, err := f.svc.CreateOrder(context.Background(), req, "", "", "")
		require.Error(t, err)
		assert.Equal(t, models.KindValidation, models.KindOf(err))
	}
	assert.Empty(t, f.audits.types(), "no gateway call, no audit")
}

func TestCreateOrder_GatewayFailure(t *testing.T) {
	f := newOrchestratorFixture(t, failingGateway{NewTestGateway("", quietLogger())})

	_, err := f.svc.CreateOrder(context.Background(), models.CreateOrderRequest{Amount: 150}, "", "", "req-2")
	require.Error(t, err)

	appErr := models.AsAppError(err)
	assert.Equal(t, models.KindGateway, appErr.Kind)
	assert.Equal(t, 502, appErr.Status)
	assert.Equal(t, []models.PaymentEventType{models.PaymentEventOrderFailed}, f.audits.types())
}

// ============================================================================
// VERIFY EVENT PAYMENT
// ============================================================================

func TestVerifyEventPayment_Success(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Hackathon", Fee: 200, MaxParticipants: 100})

	result, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    validEventPayload(event.ID),
		CorrelationID:   "req-3",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, "Hackathon", result.EventTitle)
	assert.Equal(t, 1, f.profiles.count())
	assert.Equal(t, 1, f.store.registrationCount())
	assert.Equal(t, 1, f.store.events[event.ID].CurrentParticipants)

	assert.Equal(t, []models.PaymentEventType{
		models.PaymentEventVerifyingSignature,
		models.PaymentEventPersisting,
		models.PaymentEventCompleted,
		models.PaymentEventNotifying,
	}, f.audits.types())

	sent := f.notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "asha@example.com", sent[0].To)
	assert.Equal(t, models.NotificationRegistrationConfirmation, sent[0].Type)
	assert.Equal(t, "Hackathon", sent[0].Data["event_title"])
}

func TestVerifyEventPayment_BadSignatureHasNoSideEffects(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Hackathon", Fee: 200})

	cb := signedCallback("order_1", "pay_1")
	cb.Signature = strings.Repeat("0", 64)

	_, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: cb,
		Registration:    validEventPayload(event.ID),
	})
	require.Error(t, err)

	appErr := models.AsAppError(err)
	assert.Equal(t, models.KindAuthentication, appErr.Kind)
	assert.Equal(t, 401, appErr.Status)
	assert.Equal(t, 0, f.profiles.count())
	assert.Equal(t, 0, f.store.registrationCount())
	assert.Empty(t, f.notifier.notifications())
	assert.Equal(t, []models.PaymentEventType{
		models.PaymentEventVerifyingSignature,
		models.PaymentEventRejectedBadSignature,
	}, f.audits.types())
}

func TestVerifyEventPayment_DuplicateCompletedRegistration(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Robo Wars", Fee: 100, MaxParticipants: 50})

	req := models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    validEventPayload(event.ID),
	}
	_, err := f.svc.VerifyEventPayment(context.Background(), req)
	require.NoError(t, err)

	req.PaymentCallback = signedCallback("order_2", "pay_2")
	req.Registration.Email = "asha@example.com"
	_, err = f.svc.VerifyEventPayment(context.Background(), req)
	require.Error(t, err)

	appErr := models.AsAppError(err)
	assert.Equal(t, models.KindAlreadyRegistered, appErr.Kind)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, 1, f.store.registrationCount())
	assert.Equal(t, 1, f.profiles.count())
	assert.Equal(t, 1, f.store.events[event.ID].CurrentParticipants, "second call must not increment the counter")
}

func TestVerifyEventPayment_NotificationFailureStillSucceeds(t *testing.T) {
	tests := []struct {
		name     string
		notifier *recordingNotifier
	}{
		{"dispatch error", &recordingNotifier{err: errors.New("queue full")}},
		{"dispatch panic", &recordingNotifier{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, liveGateway(t))
			f.svc.notifier = tt.notifier
			event := f.store.addEvent(&models.Event{Title: "Quiz", Fee: 50})

			result, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
				PaymentCallback: signedCallback("order_9", "pay_9"),
				Registration:    validEventPayload(event.ID),
			})
			require.NoError(t, err)
			assert.Equal(t, models.PaymentStatusCompleted, result.PaymentStatus)
			assert.Equal(t, 1, f.store.registrationCount())
		})
	}
}

func TestVerifyEventPayment_ValidationErrors(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Quiz", Fee: 50})

	tests := []struct {
		name   string
		mutate func(*models.VerifyEventPaymentRequest)
		field  string
	}{
		{"missing email", func(r *models.VerifyEventPaymentRequest) { r.Registration.Email = "" }, "email"},
		{"bad phone", func(r *models.VerifyEventPaymentRequest) { r.Registration.Phone = "12345" }, "phone"},
		{"bad event id", func(r *models.VerifyEventPaymentRequest) { r.Registration.EventID = "not-a-uuid" }, "eventId"},
		{"missing signature", func(r *models.VerifyEventPaymentRequest) { r.Signature = "" }, "signature"},
		{"team without name", func(r *models.VerifyEventPaymentRequest) {
			r.Registration.TeamInfo = &models.TeamInfo{}
		}, "teamName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.VerifyEventPaymentRequest{
				PaymentCallback: signedCallback("order_1", "pay_1"),
				Registration:    validEventPayload(event.ID),
			}
			tt.mutate(&req)

			_, err := f.svc.VerifyEventPayment(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, models.KindValidation, models.KindOf(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
	assert.Equal(t, 0, f.profiles.count())
	assert.Empty(t, f.audits.types())
}

func TestVerifyEventPayment_UnknownEvent(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))

	_, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    validEventPayload(uuid.New()),
	})
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
	assert.Equal(t, 0, f.profiles.count(), "no profile for a non-existent event")
}

func TestVerifyEventPayment_EventFullAndClosed(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	full := f.store.addEvent(&models.Event{Title: "Full", Fee: 10, MaxParticipants: 1, CurrentParticipants: 1})
	closed := f.store.addEvent(&models.Event{Title: "Closed", Fee: 10, Status: models.EventStatusCompleted})

	for _, event := range []*models.Event{full, closed} {
		_, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
			PaymentCallback: signedCallback("order_1", "pay_1"),
			Registration:    validEventPayload(event.ID),
		})
		require.Error(t, err)
		assert.Equal(t, models.KindValidation, models.KindOf(err), event.Title)
	}
	assert.Equal(t, 0, f.store.registrationCount())
}

func TestVerifyEventPayment_PersistenceFailure(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Quiz", Fee: 50})
	f.store.writeErr = errors.New("connection reset by peer")

	_, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    validEventPayload(event.ID),
	})
	require.Error(t, err)
	assert.Equal(t, models.KindPersistence, models.KindOf(err))
	assert.Empty(t, f.notifier.notifications())

	types := f.audits.types()
	assert.Equal(t, models.PaymentEventPersistenceFailed, types[len(types)-1])
}

func TestVerifyEventPayment_RunsToCompletionAfterClientCancel(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Quiz", Fee: 50})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.VerifyEventPayment(ctx, models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    validEventPayload(event.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.registrationCount())
}

func TestVerifyEventPayment_TeamSize(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	event := f.store.addEvent(&models.Event{Title: "Relay", Fee: 100, MinTeamSize: 2, MaxTeamSize: 3})

	payload := validEventPayload(event.ID)
	_, err := f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_1", "pay_1"),
		Registration:    payload,
	})
	require.Error(t, err)
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	payload.TeamInfo = &models.TeamInfo{
		TeamName: "Bolt",
		Members:  []models.TeamMember{{Name: "Kiran", Email: "kiran@example.com"}},
	}
	_, err = f.svc.VerifyEventPayment(context.Background(), models.VerifyEventPaymentRequest{
		PaymentCallback: signedCallback("order_2", "pay_2"),
		Registration:    payload,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bolt", f.notifier.notifications()[0].Data["team_name"])
}

// ============================================================================
// FREE EVENTS
// ============================================================================

func TestRegisterFreeEvent(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	free := f.store.addEvent(&models.Event{Title: "Open Mic", Fee: 0})
	paid := f.store.addEvent(&models.Event{Title: "Hackathon", Fee: 200})

	result, err := f.svc.RegisterFreeEvent(context.Background(), models.FreeEventRegistrationRequest{
		Registration: validEventPayload(free.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, result.PaymentStatus)

	_, err = f.svc.RegisterFreeEvent(context.Background(), models.FreeEventRegistrationRequest{
		Registration: validEventPayload(paid.ID),
	})
	require.Error(t, err)
	assert.Equal(t, models.KindValidation, models.KindOf(err))
	assert.Equal(t, 1, f.store.registrationCount())
}

// ============================================================================
// VERIFY FEST PAYMENT
// ============================================================================

func TestVerifyFestPayment_CreatesPending(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))

	result, err := f.svc.VerifyFestPayment(context.Background(), validFestRequest())
	require.NoError(t, err)

	assert.Equal(t, "pending admin approval", result.Message)
	assert.Equal(t, models.FestRegistrationPending, result.PaymentStatus)
	assert.Equal(t, 1, f.profiles.count())

	reg := f.store.GetFest(result.FestRegistrationID)
	require.NotNil(t, reg)
	assert.Equal(t, models.FestRegistrationPending, reg.PaymentStatus)
	assert.Nil(t, reg.RegistrationCode)
	require.NotNil(t, reg.PaymentProof)
	assert.Equal(t, "razorpay:pay_F1", *reg.PaymentProof)

	sent := f.notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotificationFestPaymentReceived, sent[0].Type)
}

func TestVerifyFestPayment_BadSignature(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	req := validFestRequest()
	req.Signature = ComputeSignature([]byte("wrong"), req.OrderID, req.PaymentID)

	_, err := f.svc.VerifyFestPayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, models.KindAuthentication, models.KindOf(err))
	assert.Equal(t, 0, f.profiles.count())
	assert.Empty(t, f.store.fest)
}

func TestVerifyFestPayment_AlreadyApproved(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))

	first, err := f.svc.VerifyFestPayment(context.Background(), validFestRequest())
	require.NoError(t, err)
	_, err = f.svc.ApproveFestRegistration(context.Background(), first.FestRegistrationID, uuid.New())
	require.NoError(t, err)

	_, err = f.svc.VerifyFestPayment(context.Background(), validFestRequest())
	require.Error(t, err)
	assert.Equal(t, models.KindAlreadyRegistered, models.KindOf(err))
}

func TestVerifyFestPayment_TestModeBypassesSignature(t *testing.T) {
	f := newOrchestratorFixture(t, NewTestGateway("", quietLogger()))
	req := validFestRequest()
	req.Signature = "not-a-signature"

	_, err := f.svc.VerifyFestPayment(context.Background(), req)
	require.NoError(t, err)
}

// ============================================================================
// APPROVAL
// ============================================================================

func TestApproveFestRegistration(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	pending, err := f.svc.VerifyFestPayment(context.Background(), validFestRequest())
	require.NoError(t, err)

	admin := uuid.New()
	approved, err := f.svc.ApproveFestRegistration(context.Background(), pending.FestRegistrationID, admin)
	require.NoError(t, err)

	assert.Equal(t, models.FestRegistrationCompleted, approved.PaymentStatus)
	require.NotNil(t, approved.RegistrationCode)
	assert.Regexp(t, regexp.MustCompile(`^FEST-\d{4}-[A-Z0-9]{6}$`), *approved.RegistrationCode)
	assert.Equal(t, admin, *approved.ApprovedBy)

	sent := f.notifier.notifications()
	require.Len(t, sent, 2)
	assert.Equal(t, models.NotificationFestCodeApproved, sent[1].Type)
	assert.Equal(t, "ravi@example.com", sent[1].To)
	assert.Equal(t, *approved.RegistrationCode, sent[1].Data["registration_code"])

	_, err = f.svc.ApproveFestRegistration(context.Background(), pending.FestRegistrationID, admin)
	require.Error(t, err)
	assert.Equal(t, models.KindAlreadyRegistered, models.KindOf(err))
}

func TestApproveFestRegistration_RetriesCodeCollision(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))
	pending, err := f.svc.VerifyFestPayment(context.Background(), validFestRequest())
	require.NoError(t, err)

	f.store.codes["FEST-2026-TAKEN1"] = true
	codes := []string{"FEST-2026-TAKEN1", "FEST-2026-FRESH1"}
	f.svc.newCode = func(time.Time) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	approved, err := f.svc.ApproveFestRegistration(context.Background(), pending.FestRegistrationID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "FEST-2026-FRESH1", *approved.RegistrationCode)
}

func TestApproveFestRegistration_NotFound(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))

	_, err := f.svc.ApproveFestRegistration(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestGenerateRegistrationCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateRegistrationCode(now)
		require.NoError(t, err)
		assert.Regexp(t, `^FEST-2026-[A-Z0-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestSendNotification(t *testing.T) {
	f := newOrchestratorFixture(t, liveGateway(t))

	err := f.svc.SendNotification(context.Background(), models.Notification{
		To: "Asha@Example.com", Type: models.NotificationGeneric, Data: map[string]interface{}{"message": "Venue changed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", f.notifier.notifications()[0].To)

	err = f.svc.SendNotification(context.Background(), models.Notification{To: "asha@example.com", Type: "fax"})
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}
