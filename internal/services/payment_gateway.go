package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	GatewayModeLive = "live"
	GatewayModeTest = "test"

	// TestOrderPrefix marks orders that were never seen by the live gateway
	TestOrderPrefix = "test_order_"

	maxReceiptLength = 40
)

// PaymentGateway creates orders and supplies the matching signature verifier.
// Live and test implementations are selected once at startup.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*models.Order, error)
	Verifier() SignatureVerifier
	Mode() string
	KeyID() string
}

// NewPaymentGateway selects the gateway implementation from configuration
func NewPaymentGateway(cfg config.PaymentConfig, logger *logrus.Logger) (PaymentGateway, error) {
	if cfg.TestMode {
		logger.Warn("PAYMENT_TEST_MODE is enabled: orders are simulated and signatures are not verified")
		return NewTestGateway(cfg.KeyID, logger), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewRazorpayGateway(cfg, logger)
}

// ToMinorUnits converts a positive amount in major units to integer minor units (150.00 -> 15000)
func ToMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("amount must be a positive number")
	}
	if amount > models.MaxOrderAmount {
		return 0, fmt.Errorf("amount must not exceed %d", models.MaxOrderAmount)
	}
	minor := int64(math.Round(amount * 100))
	if minor <= 0 {
		return 0, fmt.Errorf("amount is below the smallest currency unit")
	}
	return minor, nil
}

// NormalizeCurrency upper-cases a currency code, falling back to def when empty
func NormalizeCurrency(currency, def string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = strings.ToUpper(def)
	}
	if currency == "" {
		currency = "INR"
	}
	if len(currency) != 3 {
		return "", fmt.Errorf("currency must be a 3-letter ISO code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("currency must be a 3-letter ISO code")
		}
	}
	return currency, nil
}

// NewReceipt returns a unique receipt token: rcpt_<unix millis>_<6 hex>
func NewReceipt() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	receipt := fmt.Sprintf("rcpt_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
	if len(receipt) > maxReceiptLength {
		receipt = receipt[:maxReceiptLength]
	}
	return receipt
}
