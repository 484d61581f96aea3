package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/middleware"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// FestApprover approves fest registrations and sends ad-hoc notifications
type FestApprover interface {
	ApproveFestRegistration(ctx context.Context, festRegistrationID, approvedBy uuid.UUID) (*models.FestRegistration, error)
	SendNotification(ctx context.Context, n models.Notification) error
}

// FestRegistrationLister pages fest registrations by status
type FestRegistrationLister interface {
	ListByStatus(ctx context.Context, status models.FestRegistrationStatus, limit, offset int) ([]models.FestRegistrationWithProfile, error)
	CountByStatus(ctx context.Context, status models.FestRegistrationStatus) (int, error)
}

// Reconciler produces the reconciliation report
type Reconciler interface {
	Run(ctx context.Context) (*services.ReconciliationReport, error)
	LastReport() *services.ReconciliationReport
}

// AdminHandler handles the admin fest registration workflow
type AdminHandler struct {
	approver   FestApprover
	lister     FestRegistrationLister
	reconciler Reconciler
	logger     *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(approver FestApprover, lister FestRegistrationLister, reconciler Reconciler, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		approver:   approver,
		lister:     lister,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ===================================================================
// FEST REGISTRATION APPROVAL WORKFLOW
// ===================================================================

// ListFestRegistrations handles GET /api/v1/admin/fest-registrations?status=pending
func (h *AdminHandler) ListFestRegistrations(c *gin.Context) {
	status := models.FestRegistrationStatus(c.DefaultQuery("status", string(models.FestRegistrationPending)))
	if status != models.FestRegistrationPending && status != models.FestRegistrationCompleted {
		respondError(c, h.logger, models.ValidationError("status must be 'pending' or 'completed'", nil))
		return
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	registrations, err := h.lister.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		respondError(c, h.logger, models.PersistenceError("failed to list fest registrations", err))
		return
	}
	total, err := h.lister.CountByStatus(ctx, status)
	if err != nil {
		respondError(c, h.logger, models.PersistenceError("failed to count fest registrations", err))
		return
	}
	if registrations == nil {
		registrations = []models.FestRegistrationWithProfile{}
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"registrations": registrations,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// ApproveFestRegistration handles POST /api/v1/admin/fest-registrations/:id/approve
func (h *AdminHandler) ApproveFestRegistration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, models.ValidationError("invalid fest registration id", err))
		return
	}

	adminCtx, exists := middleware.GetAdminContext(c)
	if !exists {
		respondError(c, h.logger, models.AuthenticationError("Authentication required"))
		return
	}

	approved, err := h.approver.ApproveFestRegistration(c.Request.Context(), id, adminCtx.AdminID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"fest_registration_id": approved.ID,
		"admin_id":             adminCtx.AdminID,
	}).Info("Admin approved fest registration")

	respondSuccess(c, http.StatusOK, gin.H{"festRegistration": approved})
}

// SendNotification handles POST /api/v1/admin/notifications
func (h *AdminHandler) SendNotification(c *gin.Context) {
	var req models.SendNotificationRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.approver.SendNotification(c.Request.Context(), models.Notification{
		To:   req.To,
		Type: req.Type,
		Data: req.Data,
	}); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondSuccess(c, http.StatusAccepted, gin.H{"message": "notification queued"})
}

// GetReconciliation handles GET /api/v1/admin/reconciliation.
// ?refresh=true forces a fresh run instead of returning the last scheduled report.
func (h *AdminHandler) GetReconciliation(c *gin.Context) {
	report := h.reconciler.LastReport()
	if report == nil || c.Query("refresh") == "true" {
		var err error
		report, err = h.reconciler.Run(c.Request.Context())
		if err != nil {
			respondError(c, h.logger, models.PersistenceError("reconciliation failed", err))
			return
		}
	}

	respondSuccess(c, http.StatusOK, gin.H{"report": report})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
