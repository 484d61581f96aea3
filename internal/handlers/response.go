package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/middleware"
	"github.com/festpass/registration-backend/internal/models"
)

// respondError writes the failure envelope. Server-class errors hide the underlying cause.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	appErr := models.AsAppError(err)
	requestID := middleware.GetRequestID(c)

	entry := logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"path":       c.FullPath(),
		"kind":       appErr.Kind,
		"status":     appErr.Status,
	})
	if appErr.Err != nil {
		entry = entry.WithError(appErr.Err)
	}
	if appErr.Status >= http.StatusInternalServerError {
		entry.Error(appErr.Message)
	} else {
		entry.Debug(appErr.Message)
	}

	_ = c.Error(err)
	c.JSON(appErr.Status, models.NewErrorResponse(appErr, requestID))
}

// respondSuccess merges body into the success envelope
func respondSuccess(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// bindJSON decodes the request body, mapping decode and binding failures to validation errors
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs playground.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.ValidationError(verrs[0].Field()+" is invalid ("+verrs[0].Tag()+")", err)
		}
		return models.ValidationError("Invalid request body", err)
	}
	return nil
}
