package validator

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPrefix = errors.New("mobile number must start with 6, 7, 8 or 9")
)

var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")

// trunk prefixes keyed by the full length they appear at
var trunkPrefixes = map[int]string{13: "091", 12: "91", 11: "0"}

// PhoneValidator normalizes Indian mobile numbers to their 10 digit form
type PhoneValidator struct{}

func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Sanitize strips separators and a leading +91, 091 or 0. It does not validate.
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = separators.Replace(phone)
	if prefix, ok := trunkPrefixes[len(phone)]; ok && strings.HasPrefix(phone, prefix) {
		phone = phone[len(prefix):]
	}
	return phone
}

// Validate returns the sanitized number or the first rule it breaks
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	digits := v.Sanitize(phone)
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	if len(digits) != 10 {
		return "", ErrInvalidLength
	}
	if !strings.ContainsRune("6789", rune(digits[0])) {
		return "", ErrInvalidPrefix
	}
	return digits, nil
}

func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
