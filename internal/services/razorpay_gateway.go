package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// RazorpayGateway talks to the live Razorpay orders API
type RazorpayGateway struct {
	config   config.PaymentConfig
	logger   *logrus.Logger
	client   *http.Client
	verifier *HMACVerifier
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// NewRazorpayGateway creates the live gateway. Credentials must be present.
func NewRazorpayGateway(cfg config.PaymentConfig, logger *logrus.Logger) (*RazorpayGateway, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("payment gateway not configured: missing key id")
	}
	verifier, err := NewHMACVerifier(cfg.KeySecret)
	if err != nil {
		return nil, err
	}

	return &RazorpayGateway{
		config:   cfg,
		logger:   logger,
		verifier: verifier,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// CreateOrder registers an order with the gateway
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*models.Order, error) {
	endpointURL := strings.TrimRight(g.config.APIURL, "/") + "/v1/orders"

	jsonBody, err := json.Marshal(&razorpayOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.config.KeyID, g.config.KeySecret)

	g.logger.WithFields(logrus.Fields{
		"receipt":  receipt,
		"amount":   amountMinor,
		"currency": currency,
	}).Info("Creating gateway order")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call payment gateway")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(body),
		}).Error("Payment gateway rejected order")
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var orderResp razorpayOrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if orderResp.ID == "" {
		return nil, fmt.Errorf("payment gateway returned no order id")
	}

	g.logger.WithFields(logrus.Fields{
		"order_id": orderResp.ID,
		"status":   orderResp.Status,
	}).Info("Gateway order created")

	return &models.Order{
		ID:       orderResp.ID,
		Amount:   orderResp.Amount,
		Currency: orderResp.Currency,
		Receipt:  orderResp.Receipt,
		Status:   orderResp.Status,
	}, nil
}

// Verifier returns the HMAC verifier keyed with the gateway secret
func (g *RazorpayGateway) Verifier() SignatureVerifier {
	return g.verifier
}

// Mode reports "live"
func (g *RazorpayGateway) Mode() string {
	return GatewayModeLive
}

// KeyID returns the public key id handed to the checkout widget
func (g *RazorpayGateway) KeyID() string {
	return g.config.KeyID
}
