package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SignatureVerifier checks that a checkout callback was produced by the gateway
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// HMACVerifier recomputes HMAC-SHA256(secret, orderID|paymentID) and compares it
// against the received lowercase hex signature.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier. An empty secret is a configuration error.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("payment gateway secret is not configured")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify returns false on any mismatch; it never errors
func (v *HMACVerifier) Verify(orderID, paymentID, signature string) bool {
	expected := ComputeSignature(v.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of orderID + "|" + paymentID
func ComputeSignature(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// BypassVerifier accepts every signature. Only selected when PAYMENT_TEST_MODE=true.
type BypassVerifier struct {
	logger *logrus.Logger
}

// NewBypassVerifier creates a verifier for test mode
func NewBypassVerifier(logger *logrus.Logger) *BypassVerifier {
	return &BypassVerifier{logger: logger}
}

// Verify logs the bypass and reports the signature as valid
func (v *BypassVerifier) Verify(orderID, paymentID, signature string) bool {
	v.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"payment_id": paymentID,
	}).Warn("PAYMENT TEST MODE: signature verification bypassed")
	return true
}
