package services

import (
	"context"

	"github.com/festpass/registration-backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TestGateway simulates orders locally. It never performs network I/O.
type TestGateway struct {
	keyID    string
	logger   *logrus.Logger
	verifier *BypassVerifier
}

// NewTestGateway creates the test-mode gateway
func NewTestGateway(keyID string, logger *logrus.Logger) *TestGateway {
	if keyID == "" {
		keyID = "rzp_test_mode"
	}
	return &TestGateway{
		keyID:    keyID,
		logger:   logger,
		verifier: NewBypassVerifier(logger),
	}
}

// CreateOrder synthesizes an order tagged with TestOrderPrefix
func (g *TestGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*models.Order, error) {
	order := &models.Order{
		ID:       TestOrderPrefix + uuid.NewString(),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}

	g.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"amount":   amountMinor,
	}).Warn("PAYMENT TEST MODE: simulated order created")

	return order, nil
}

func (g *TestGateway) Verifier() SignatureVerifier {
	return g.verifier
}

func (g *TestGateway) Mode() string {
	return GatewayModeTest
}

func (g *TestGateway) KeyID() string {
	return g.keyID
}
