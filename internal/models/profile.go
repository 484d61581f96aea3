package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FestPaymentStatus tracks the whole-fest payment on a profile
type FestPaymentStatus string

const (
	FestPaymentNone      FestPaymentStatus = "none"
	FestPaymentPending   FestPaymentStatus = "pending"
	FestPaymentCompleted FestPaymentStatus = "completed"
	FestPaymentFailed    FestPaymentStatus = "failed"
)

// Profile represents one human participant. Email is the natural key.
type Profile struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	Email                string            `json:"email" db:"email"`
	FullName             string            `json:"full_name" db:"full_name"`
	Phone                string            `json:"phone" db:"phone"`
	College              string            `json:"college" db:"college"`
	Year                 *string           `json:"year,omitempty" db:"year"`
	Branch               *string           `json:"branch,omitempty" db:"branch"`
	Education            *string           `json:"education,omitempty" db:"education"`
	IsFestRegistered     bool              `json:"is_fest_registered" db:"is_fest_registered"`
	FestPaymentStatus    FestPaymentStatus `json:"fest_payment_status" db:"fest_payment_status"`
	FestRegistrationCode *string           `json:"fest_registration_code,omitempty" db:"fest_registration_code"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// ProfileInput is the bag of mutable fields refreshed on every registration attempt
type ProfileInput struct {
	Email     string
	FullName  string
	Phone     string
	College   string
	Year      string
	Branch    string
	Education string
}

// NormalizeEmail trims and lower-cases an email so it can serve as the idempotency key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OrphanProfile is a profile that has no event or fest registration attached
type OrphanProfile struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
