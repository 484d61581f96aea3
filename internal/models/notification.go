package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType selects the email template
type NotificationType string

const (
	NotificationRegistrationConfirmation NotificationType = "registration_confirmation"
	NotificationPaymentStatusUpdate      NotificationType = "payment_status_update"
	NotificationFestPaymentReceived      NotificationType = "fest_payment_received"
	NotificationFestCodeApproved         NotificationType = "fest_code_approved"
	NotificationGeneric                  NotificationType = "generic"
)

// IsValid reports whether t names a known template
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationRegistrationConfirmation, NotificationPaymentStatusUpdate,
		NotificationFestPaymentReceived, NotificationFestCodeApproved, NotificationGeneric:
		return true
	}
	return false
}

// Notification is one outbound email request
type Notification struct {
	ID   string                 `json:"id"`
	To   string                 `json:"to" validate:"required,email"`
	Type NotificationType       `json:"type" validate:"required"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// NotificationDeadLetter records a notification that exhausted its retries
type NotificationDeadLetter struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Recipient string           `json:"recipient" db:"recipient"`
	Type      NotificationType `json:"type" db:"type"`
	Payload   JSONB            `json:"payload" db:"payload"`
	Attempts  int              `json:"attempts" db:"attempts"`
	LastError string           `json:"last_error" db:"last_error"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
