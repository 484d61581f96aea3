package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	playground "github.com/go-playground/validator/v10"
)

// RequestValidator validates request DTOs tagged with `validate:"..."`
type RequestValidator struct {
	validate *playground.Validate
}

// NewRequestValidator creates a validator with the "mobile" tag registered
func NewRequestValidator() *RequestValidator {
	v := playground.New()

	// Report JSON field names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	phone := NewPhoneValidator()
	_ = v.RegisterValidation("mobile", func(fl playground.FieldLevel) bool {
		return phone.IsValid(fl.Field().String())
	})

	return &RequestValidator{validate: v}
}

// Struct validates s and returns a single readable error listing every failed field
func (r *RequestValidator) Struct(s interface{}) error {
	err := r.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs playground.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe playground.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "mobile":
		return fmt.Sprintf("%s must be a valid 10 digit mobile number", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath turns "VerifyEventPaymentRequest.PaymentCallback.signature" into "signature".
// The root struct and embedded structs (Go-cased segments) are dropped.
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) == 1 {
		return namespace
	}
	kept := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return parts[len(parts)-1]
	}
	return strings.Join(kept, ".")
}
