package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment state of an event registration
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Registration joins a profile to an event. At most one row per (profile, event).
type Registration struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	ProfileID        uuid.UUID     `json:"profile_id" db:"profile_id"`
	EventID          uuid.UUID     `json:"event_id" db:"event_id"`
	TeamID           *uuid.UUID    `json:"team_id,omitempty" db:"team_id"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	GatewayOrderID   *string       `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string       `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	PaymentProofURL  *string       `json:"payment_proof_url,omitempty" db:"payment_proof_url"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// FestRegistrationStatus is the two-phase state of a whole-fest registration
type FestRegistrationStatus string

const (
	FestRegistrationPending   FestRegistrationStatus = "pending"
	FestRegistrationCompleted FestRegistrationStatus = "completed"
)

// GatewayProofPrefix tags payment proofs that carry a gateway payment id
// instead of an uploaded file URL.
const GatewayProofPrefix = "razorpay:"

// FestRegistration is created pending on payment and completed only on admin approval.
// RegistrationCode is non-nil iff PaymentStatus is completed.
type FestRegistration struct {
	ID               uuid.UUID              `json:"id" db:"id"`
	ProfileID        uuid.UUID              `json:"profile_id" db:"profile_id"`
	PaymentStatus    FestRegistrationStatus `json:"payment_status" db:"payment_status"`
	PaymentProof     *string                `json:"payment_proof,omitempty" db:"payment_proof"`
	GatewayOrderID   *string                `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string                `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	RegistrationCode *string                `json:"registration_code,omitempty" db:"registration_code"`
	ApprovedBy       *uuid.UUID             `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt       *time.Time             `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" db:"updated_at"`
}

// FestRegistrationWithProfile is the admin listing row
type FestRegistrationWithProfile struct {
	FestRegistration
	Email    string `json:"email" db:"email"`
	FullName string `json:"full_name" db:"full_name"`
	College  string `json:"college" db:"college"`
}

// GatewayProof builds the tagged payment proof for a gateway payment id
func GatewayProof(paymentID string) string {
	return GatewayProofPrefix + paymentID
}

// IsGatewayProof reports whether a payment proof was produced by the gateway flow
func IsGatewayProof(proof string) bool {
	return strings.HasPrefix(proof, GatewayProofPrefix)
}

// EventRegistrationInput is what the registration writer needs for one event write
type EventRegistrationInput struct {
	ProfileID        uuid.UUID
	EventID          uuid.UUID
	Team             *TeamInfo
	PaymentStatus    PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	PaymentProofURL  string
}

// EventRegistrationResult is returned after a successful event registration write
type EventRegistrationResult struct {
	RegistrationID uuid.UUID     `json:"registration_id"`
	ProfileID      uuid.UUID     `json:"profile_id"`
	EventID        uuid.UUID     `json:"event_id"`
	EventTitle     string        `json:"event_title"`
	TeamID         *uuid.UUID    `json:"team_id,omitempty"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	FirstCompleted bool          `json:"-"`
}

// FestPaymentResult is returned from fest payment verification
type FestPaymentResult struct {
	FestRegistrationID uuid.UUID              `json:"fest_registration_id"`
	ProfileID          uuid.UUID              `json:"profile_id"`
	PaymentStatus      FestRegistrationStatus `json:"payment_status"`
	Message            string                 `json:"message"`
}
