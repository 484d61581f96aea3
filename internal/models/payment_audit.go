package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType is one step of a registration attempt's state machine
type PaymentEventType string

const (
	PaymentEventOrderCreated         PaymentEventType = "ORDER_CREATED"
	PaymentEventOrderFailed          PaymentEventType = "ORDER_FAILED"
	PaymentEventVerifyingSignature   PaymentEventType = "VERIFYING_SIGNATURE"
	PaymentEventRejectedBadSignature PaymentEventType = "REJECTED_BAD_SIGNATURE"
	PaymentEventPersisting           PaymentEventType = "PERSISTING"
	PaymentEventPersistenceFailed    PaymentEventType = "PERSISTENCE_FAILED"
	PaymentEventCompleted            PaymentEventType = "COMPLETED"
	PaymentEventNotifying            PaymentEventType = "NOTIFYING"
	PaymentEventApproved             PaymentEventType = "FEST_APPROVED"
)

// IsTerminal reports whether the attempt ends at this state
func (t PaymentEventType) IsTerminal() bool {
	switch t {
	case PaymentEventRejectedBadSignature, PaymentEventPersistenceFailed, PaymentEventCompleted, PaymentEventOrderFailed:
		return true
	}
	return false
}

// PaymentFlow identifies which orchestrator flow produced an audit entry
type PaymentFlow string

const (
	PaymentFlowOrder    PaymentFlow = "order"
	PaymentFlowEvent    PaymentFlow = "event"
	PaymentFlowFest     PaymentFlow = "fest"
	PaymentFlowFree     PaymentFlow = "free_event"
	PaymentFlowApproval PaymentFlow = "approval"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend PaymentEventSource = "backend"
	PaymentSourceGateway PaymentEventSource = "gateway"
	PaymentSourceAdmin   PaymentEventSource = "admin"
)

// PaymentAudit is an immutable audit log entry for one state transition
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Flow        PaymentFlow        `json:"flow" db:"flow"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	OrderID   *string    `json:"order_id,omitempty" db:"order_id"`
	PaymentID *string    `json:"payment_id,omitempty" db:"payment_id"`
	Email     *string    `json:"email,omitempty" db:"email"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty" db:"profile_id"`
	EventID   *uuid.UUID `json:"event_id,omitempty" db:"event_id"`

	AmountMinor *int64  `json:"amount_minor,omitempty" db:"amount_minor"`
	Currency    *string `json:"currency,omitempty" db:"currency"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	Details JSONB `json:"details,omitempty" db:"details"`

	ProcessingTimeMs *int    `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IPAddress        *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent        *string `json:"user_agent,omitempty" db:"user_agent"`
	CorrelationID    *string `json:"correlation_id,omitempty" db:"correlation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(flow PaymentFlow, eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		Flow:        flow,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetGatewayIDs sets the order and payment ids reported by the client callback
func (pa *PaymentAudit) SetGatewayIDs(orderID, paymentID string) *PaymentAudit {
	if orderID != "" {
		pa.OrderID = &orderID
	}
	if paymentID != "" {
		pa.PaymentID = &paymentID
	}
	return pa
}

// SetEmail sets the normalized participant email
func (pa *PaymentAudit) SetEmail(email string) *PaymentAudit {
	if email != "" {
		pa.Email = &email
	}
	return pa
}

// SetProfile sets the resolved profile id
func (pa *PaymentAudit) SetProfile(profileID uuid.UUID) *PaymentAudit {
	pa.ProfileID = &profileID
	return pa
}

// SetEvent sets the target event id
func (pa *PaymentAudit) SetEvent(eventID uuid.UUID) *PaymentAudit {
	pa.EventID = &eventID
	return pa
}

// SetAmount sets the order amount in minor units
func (pa *PaymentAudit) SetAmount(amountMinor int64, currency string) *PaymentAudit {
	pa.AmountMinor = &amountMinor
	pa.Currency = &currency
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetDetails attaches free-form details
func (pa *PaymentAudit) SetDetails(details map[string]interface{}) *PaymentAudit {
	pa.Details = JSONB(details)
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, correlationID string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if correlationID != "" {
		pa.CorrelationID = &correlationID
	}
	return pa
}

// SetProcessingTime records the elapsed time since the attempt started
func (pa *PaymentAudit) SetProcessingTime(startTime time.Time) *PaymentAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	pa.ProcessingTimeMs = &durationMs
	return pa
}
