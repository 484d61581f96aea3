package models

// Order is the gateway's order handle
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// MaxOrderAmount caps a single order in major units; keep in sync with the lte tag below
const MaxOrderAmount = 10_000_000

// CreateOrderRequest is the create-order request body
type CreateOrderRequest struct {
	Amount   float64 `json:"amount" validate:"gt=0,lte=10000000"`
	Currency string  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// CreateOrderResponse is returned to the client before checkout
type CreateOrderResponse struct {
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	GatewayKeyID string `json:"gatewayKeyId"`
	TestMode     bool   `json:"testMode,omitempty"`
}

// PaymentCallback is the gateway checkout callback payload
type PaymentCallback struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// EventRegistrationPayload is the participant data submitted with an event payment
type EventRegistrationPayload struct {
	Email           string    `json:"email" validate:"required,email"`
	FullName        string    `json:"fullName" validate:"required,max=200"`
	Phone           string    `json:"phone" validate:"required,mobile"`
	College         string    `json:"college" validate:"required,max=200"`
	Year            string    `json:"year,omitempty"`
	Branch          string    `json:"branch,omitempty"`
	EventID         string    `json:"eventId" validate:"required,uuid"`
	TeamInfo        *TeamInfo `json:"teamInfo,omitempty"`
	PaymentProofURL string    `json:"paymentProofUrl,omitempty" validate:"omitempty,url"`
}

// VerifyEventPaymentRequest is the verify-event-payment request body
type VerifyEventPaymentRequest struct {
	PaymentCallback
	Registration EventRegistrationPayload `json:"registration"`

	// Request metadata, filled by the handler
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
	CorrelationID string `json:"-"`
}

// FestRegistrationPayload is the participant data submitted with a fest payment
type FestRegistrationPayload struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"fullName" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"required,mobile"`
	College   string `json:"college" validate:"required,max=200"`
	Year      string `json:"year,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Education string `json:"education,omitempty"`
}

// VerifyFestPaymentRequest is the verify-fest-payment request body
type VerifyFestPaymentRequest struct {
	PaymentCallback
	Registration FestRegistrationPayload `json:"registration"`

	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
	CorrelationID string `json:"-"`
}

// FreeEventRegistrationRequest registers for a zero-fee event without a gateway round trip
type FreeEventRegistrationRequest struct {
	Registration EventRegistrationPayload `json:"registration"`

	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
	CorrelationID string `json:"-"`
}

// ProfileInput builds the resolver input for an event registration payload
func (p EventRegistrationPayload) ProfileInput() ProfileInput {
	return ProfileInput{
		Email:    p.Email,
		FullName: p.FullName,
		Phone:    p.Phone,
		College:  p.College,
		Year:     p.Year,
		Branch:   p.Branch,
	}
}

// ProfileInput builds the resolver input for a fest registration payload
func (p FestRegistrationPayload) ProfileInput() ProfileInput {
	return ProfileInput{
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		College:   p.College,
		Year:      p.Year,
		Branch:    p.Branch,
		Education: p.Education,
	}
}
