package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/middleware"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/internal/utils"
)

// PaymentService is the orchestrator surface used by the public payment routes
type PaymentService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest, ip, userAgent, correlationID string) (*models.CreateOrderResponse, error)
	VerifyEventPayment(ctx context.Context, req models.VerifyEventPaymentRequest) (*models.EventRegistrationResult, error)
	VerifyFestPayment(ctx context.Context, req models.VerifyFestPaymentRequest) (*models.FestPaymentResult, error)
	RegisterFreeEvent(ctx context.Context, req models.FreeEventRegistrationRequest) (*models.EventRegistrationResult, error)
}

// OrderLimiter throttles order creation per client IP
type OrderLimiter interface {
	CheckOrderLimit(ctx context.Context, ip string) error
}

// PaymentHandler handles order creation and payment verification requests
type PaymentHandler struct {
	payments PaymentService
	limiter  OrderLimiter
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler. limiter may be nil.
func NewPaymentHandler(payments PaymentService, limiter OrderLimiter, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		limiter:  limiter,
		logger:   logger,
	}
}

// RegisterRoutes mounts the public payment and registration routes
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("/orders", h.CreateOrder)
		payments.POST("/events/verify", h.VerifyEventPayment)
		payments.POST("/fest/verify", h.VerifyFestPayment)
	}
	rg.POST("/registrations/free", h.RegisterFreeEvent)
}

// CreateOrder handles POST /payments/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	ip := utils.GetRealIP(c)
	if h.limiter != nil {
		if err := h.limiter.CheckOrderLimit(c.Request.Context(), ip); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	order, err := h.payments.CreateOrder(c.Request.Context(), req, ip, utils.GetUserAgent(c), middleware.GetRequestID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"order": order})
}

// VerifyEventPayment handles POST /payments/events/verify
func (h *PaymentHandler) VerifyEventPayment(c *gin.Context) {
	var req models.VerifyEventPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	req.IPAddress = utils.GetRealIP(c)
	req.UserAgent = utils.GetUserAgent(c)
	req.CorrelationID = middleware.GetRequestID(c)

	result, err := h.payments.VerifyEventPayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"registrationResult": result})
}

// VerifyFestPayment handles POST /payments/fest/verify
func (h *PaymentHandler) VerifyFestPayment(c *gin.Context) {
	var req models.VerifyFestPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	req.IPAddress = utils.GetRealIP(c)
	req.UserAgent = utils.GetUserAgent(c)
	req.CorrelationID = middleware.GetRequestID(c)

	result, err := h.payments.VerifyFestPayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"message":          result.Message,
		"festRegistration": result,
	})
}

// RegisterFreeEvent handles POST /registrations/free
func (h *PaymentHandler) RegisterFreeEvent(c *gin.Context) {
	var req models.FreeEventRegistrationRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	req.IPAddress = utils.GetRealIP(c)
	req.UserAgent = utils.GetUserAgent(c)
	req.CorrelationID = middleware.GetRequestID(c)

	result, err := h.payments.RegisterFreeEvent(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusCreated, gin.H{"registrationResult": result})
}
