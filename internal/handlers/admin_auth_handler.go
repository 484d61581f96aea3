package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/middleware"
	"github.com/festpass/registration-backend/internal/models"
)

// AdminAuthenticator issues admin tokens
type AdminAuthenticator interface {
	Login(ctx context.Context, email, password string) (*models.AdminLoginResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.AdminLoginResponse, error)
}

// AdminAuthHandler serves /admin/auth
type AdminAuthHandler struct {
	auth   AdminAuthenticator
	logger *logrus.Logger
}

func NewAdminAuthHandler(auth AdminAuthenticator, logger *logrus.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{auth: auth, logger: logger}
}

// Login handles POST /api/v1/admin/auth/login
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req models.AdminLoginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	email := models.NormalizeEmail(req.Email)
	tokens, err := h.auth.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"email":      email,
			"ip":         c.ClientIP(),
			"request_id": middleware.GetRequestID(c),
		}).Warn("Admin login rejected")
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"auth": tokens})
}

// RefreshToken handles POST /api/v1/admin/auth/refresh
func (h *AdminAuthHandler) RefreshToken(c *gin.Context) {
	var req models.AdminRefreshRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	tokens, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"auth": tokens})
}

// Me handles GET /api/v1/admin/auth/me
func (h *AdminAuthHandler) Me(c *gin.Context) {
	adminCtx, ok := middleware.GetAdminContext(c)
	if !ok {
		respondError(c, h.logger, models.AuthenticationError("Authentication required"))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"admin": adminCtx})
}
